package httpmigrator

import (
	"errors"
	"net/http"
	"sync"

	log "github.com/sirupsen/logrus"
)

func StartHttpServer(addr string, handler http.Handler, wg *sync.WaitGroup) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}

	wg.Add(1)
	go func() {
		defer wg.Done()

		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Failed to listen on the metrics endpoint: %v. "+
				"The migration continues without it.", err)
		}
	}()

	return srv
}
