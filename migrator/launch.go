package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/awsclient"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/common"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/config"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/health"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/logging"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/metrics"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/metrics/prommetrics"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/runner"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// newAccounts builds the AWS clients of both accounts.
var newAccounts = func(ctx context.Context, conf *config.Config) (*awsclient.Account, *awsclient.Account, error) {
	source, err := awsclient.NewAccount(ctx, common.SourceAccount, conf.Source.AccountConfig)
	if err != nil {
		return nil, nil, err
	}
	target, err := awsclient.NewAccount(ctx, common.TargetAccount, conf.Target.AccountConfig)
	if err != nil {
		return nil, nil, err
	}
	return source, target, nil
}

func runSignalListener(cancelFunc context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Warnf("Received %v, stopping after the current AWS call.", sig)

		// let the running step wrap up: cancel
		cancelFunc()
	}()
}

// environment is everything a command needs once its configuration is loaded.
type environment struct {
	conf     *config.Config
	source   *awsclient.Account
	target   *awsclient.Account
	factory  metrics.MetricFactory
	metrics  *metrics.MigrationMetrics
	logFile  *logging.FileHook
	progress *progress
}

// progress reports the step of the command currently running to the
// readiness endpoint.
type progress struct {
	lock    sync.Mutex
	current health.StepReporter
	step    string
}

func (p *progress) track(r health.StepReporter) {
	p.lock.Lock()
	p.current = r
	p.lock.Unlock()
}

func (p *progress) set(step string) {
	p.lock.Lock()
	p.current = nil
	p.step = step
	p.lock.Unlock()
}

func (p *progress) CurrentStep() string {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.current != nil {
		return p.current.CurrentStep()
	}
	return p.step
}

func (e *environment) close() {
	if e.logFile != nil {
		e.logFile.Close()
	}
}

// launch loads the configuration, opens the log file and the AWS clients, then
// runs body under the signal listener and the metrics server. No AWS call is
// made when the configuration does not load.
func launch(v *viper.Viper, command string, configFile string, body func(ctx context.Context, env *environment) error) error {
	conf, err := config.New().LoadConfig(configFile)
	if err != nil {
		log.Errorf("Error loading configuration: %v. Aborting.", err)
		return err
	}

	if v.GetString(flagLogLevel) == "" && !v.GetBool(flagDebug) {
		logLevel, err := conf.ParseLogLevel()
		if err != nil {
			log.Errorf("Error loading log level configuration: %v. Aborting.", err)
			return err
		}
		log.SetLevel(logLevel)
	}

	env := &environment{conf: conf, progress: &progress{step: "Starting"}}
	defer env.close()

	env.logFile, err = logging.OpenFileHook(conf.OutputDir, time.Now())
	if err != nil {
		return common.MissingPrerequisite("%v", err)
	}
	log.AddHook(env.logFile)
	log.Infof("redis-migrate version %v, %v, log file %v", MigratorVersionNumber, command, env.logFile.Path)
	log.Debugf("Configuration: %v", conf)

	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()
	runSignalListener(cancelFunc)
	log.Debug("SIGINT/SIGTERM listener started.")

	env.source, env.target, err = newAccounts(ctx, conf)
	if err != nil {
		return err
	}

	env.factory = prommetrics.NewPrometheusMetricFactory(prometheus.NewRegistry(), prommetrics.DefaultMetricsPrefix)
	env.metrics = metrics.NewMigrationMetrics(env.factory)

	return runner.RunMain(ctx, conf, runner.SetupHandlers(), env.factory, env.progress, func(ctx context.Context) error {
		err := body(ctx, env)
		result := metrics.ResultSuccess
		if err != nil {
			result = metrics.ResultFailure
		}
		env.metrics.IncRuns(command, result)
		return err
	})
}
