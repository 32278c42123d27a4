// Package validator checks that a migrated cluster answers and holds enough
// keys. It runs inside the validation function and in tests over net.Pipe.
package validator

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/resp"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPort      = 6379
	DefaultThreshold = 40
	MaxSampleKeys    = 10

	StatusSuccess = "success"
	StatusError   = "error"

	connected = "connected"
	failed    = "failed"
)

// Summary is the outcome of one validation.
type Summary struct {
	Status           string   `json:"status"`
	Endpoint         string   `json:"endpoint"`
	Connection       string   `json:"connection"`
	Ping             string   `json:"ping,omitempty"`
	KeyCount         int64    `json:"key_count"`
	SampleKeys       []string `json:"sample_keys"`
	Threshold        int64    `json:"threshold"`
	MigrationSuccess bool     `json:"migration_success"`
	Error            string   `json:"error,omitempty"`
}

// Response is the function result envelope.
type Response struct {
	StatusCode int      `json:"statusCode"`
	Body       *Summary `json:"body"`
}

// NewResponse wraps s, using 500 when the cluster could not be checked.
func NewResponse(s *Summary) *Response {
	code := 200
	if s.Status == StatusError {
		code = 500
	}
	return &Response{StatusCode: code, Body: s}
}

// Address joins host and port, defaulting the port.
func Address(host string, port int) string {
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Validate connects to endpoint and issues PING, DBSIZE and KEYS *. The
// migration counts as successful when DBSIZE reaches threshold. A returned
// error means the cluster could not be checked; the Summary is filled in
// either way.
func Validate(ctx context.Context, dialer resp.Dialer, endpoint string, threshold int64) (*Summary, error) {
	s := &Summary{
		Status:     StatusError,
		Endpoint:   endpoint,
		Connection: failed,
		SampleKeys: []string{},
		Threshold:  threshold,
	}

	conn, err := resp.Dial(ctx, dialer, endpoint)
	if err != nil {
		s.Error = err.Error()
		return s, err
	}
	defer conn.Close()

	if err = s.check(ctx, conn); err != nil {
		s.Error = err.Error()
		return s, err
	}

	s.Status = StatusSuccess
	s.MigrationSuccess = s.KeyCount >= threshold
	log.WithFields(log.Fields{
		"endpoint":  endpoint,
		"key_count": s.KeyCount,
		"threshold": threshold,
	}).Infof("Validation finished, migration success: %v.", s.MigrationSuccess)
	return s, nil
}

func (s *Summary) check(ctx context.Context, conn *resp.Conn) error {
	reply, err := conn.Do(ctx, "PING")
	if err != nil {
		return err
	}
	pong, err := reply.Text()
	if err != nil {
		return fmt.Errorf("PING: %w", err)
	}
	s.Connection = connected
	s.Ping = pong

	reply, err = conn.Do(ctx, "DBSIZE")
	if err != nil {
		return err
	}
	if s.KeyCount, err = reply.Int(); err != nil {
		return fmt.Errorf("DBSIZE: %w", err)
	}

	reply, err = conn.Do(ctx, "KEYS", "*")
	if err != nil {
		return err
	}
	keys, err := reply.Strings()
	if err != nil {
		return fmt.Errorf("KEYS: %w", err)
	}
	if len(keys) > MaxSampleKeys {
		keys = keys[:MaxSampleKeys]
	}
	if keys != nil {
		s.SampleKeys = keys
	}
	return nil
}
