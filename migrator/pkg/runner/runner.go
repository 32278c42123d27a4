package runner

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/health"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/httpmigrator"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/metrics"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

type Handlers struct {
	Mux       *http.ServeMux
	Metrics   *httpmigrator.HandlerWithFallback
	Readiness *httpmigrator.HandlerWithFallback
}

func SetupHandlers() *Handlers {
	h := &Handlers{
		Mux:       http.NewServeMux(),
		Metrics:   httpmigrator.NewHandlerWithFallback(metrics.DefaultHttpHandler()),
		Readiness: httpmigrator.NewHandlerWithFallback(health.DefaultReadinessHandler()),
	}
	h.Mux.Handle("/metrics", h.Metrics.Handler())
	h.Mux.Handle("/health/readiness", h.Readiness.Handler())
	h.Mux.Handle("/health/liveness", health.LivenessHandler())
	return h
}

// Task is the command body run by RunMain.
type Task func(ctx context.Context) error

// RunMain serves metrics and health while task runs, when a metrics port is
// configured, and writes the metrics textfile once task returns. The task
// error is returned unchanged.
func RunMain(
	ctx context.Context,
	conf *config.Config,
	handlers *Handlers,
	factory metrics.MetricFactory,
	reporter health.StepReporter,
	task Task) error {

	var srv *http.Server
	wg := &sync.WaitGroup{}
	if conf.Metrics.Port > 0 {
		addr := fmt.Sprintf("%s:%d", conf.Metrics.Address, conf.Metrics.Port)
		log.Infof("Starting http server on %v.", addr)
		srv = httpmigrator.StartHttpServer(addr, handlers.Mux, wg)
	}

	handlers.Metrics.SetHandler(factory.HttpHandler())
	if reporter != nil {
		handlers.Readiness.SetHandler(health.ReadinessHandler(reporter))
	}

	err := task(ctx)

	if conf.Metrics.Textfile != "" {
		if tfErr := factory.WriteTextfile(conf.Metrics.Textfile); tfErr != nil {
			log.Warnf("Could not write metrics textfile %v: %v", conf.Metrics.Textfile, tfErr)
		} else {
			log.Debugf("Metrics written to %v.", conf.Metrics.Textfile)
		}
	}

	if srv != nil {
		log.Info("Shutting down http server, waiting up to 5 seconds.")
		srvShutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := srv.Shutdown(srvShutdownCtx); shutdownErr != nil {
			log.Errorf("Failed to gracefully shutdown http server: %v", shutdownErr)
		}
		wg.Wait()
		log.Info("Http server shutdown.")
	}
	return err
}
