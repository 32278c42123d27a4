package health

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// StepReporter exposes the progress of the running command.
type StepReporter interface {
	CurrentStep() string
}

// FailedStep is the step name reported once a run has aborted.
const FailedStep = "Failed"

type StatusReport struct {
	Step   string
	Status Status
}

type Status string

const (
	UP      = Status("UP")
	DOWN    = Status("DOWN")
	STARTUP = Status("STARTUP")
)

func DefaultReadinessHandler() http.Handler {
	return ReadinessHandler(nil)
}

func ReadinessHandler(reporter StepReporter) http.Handler {
	return http.HandlerFunc(func(rsp http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.NotFound(rsp, req)
			return
		}

		report := PerformHealthCheck(reporter)
		bytes, err := json.Marshal(report)
		if err != nil {
			uid := uuid.New()
			msg := fmt.Sprintf("Internal server error with code %v", uid)
			log.Errorf("Could not perform health check (code: %v): %v", uid, err)

			http.Error(rsp, msg, http.StatusInternalServerError)
			return
		}

		header := rsp.Header()
		header.Set("Content-Type", "application/json")
		if report.Status == UP {
			rsp.WriteHeader(http.StatusOK)
		} else {
			rsp.WriteHeader(http.StatusServiceUnavailable)
		}
		rsp.Write(bytes)
	})
}

func LivenessHandler() http.Handler {
	return http.HandlerFunc(func(rsp http.ResponseWriter, req *http.Request) {
		rsp.WriteHeader(http.StatusOK)
		rsp.Write([]byte("OK"))
	})
}

func PerformHealthCheck(reporter StepReporter) *StatusReport {
	if reporter == nil {
		return &StatusReport{Status: STARTUP}
	}
	step := reporter.CurrentStep()
	if step == FailedStep {
		return &StatusReport{Step: step, Status: DOWN}
	}
	return &StatusReport{Step: step, Status: UP}
}
