package validator

import (
	"context"
	"fmt"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/resp"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultKeyCount = 50
	TestKeyPrefix   = "migration-test:key:"
)

// LoadSummary reports how many test keys were written.
type LoadSummary struct {
	Status    string `json:"status"`
	Endpoint  string `json:"endpoint"`
	Requested int    `json:"requested"`
	Written   int    `json:"written"`
	Error     string `json:"error,omitempty"`
}

// TestKey returns the name of the n-th test key.
func TestKey(n int) string {
	return fmt.Sprintf("%v%d", TestKeyPrefix, n)
}

// Load writes count string keys to endpoint with SET so a later migration has
// data to carry. It stops at the first failed write.
func Load(ctx context.Context, dialer resp.Dialer, endpoint string, count int) (*LoadSummary, error) {
	s := &LoadSummary{Status: StatusError, Endpoint: endpoint, Requested: count}

	conn, err := resp.Dial(ctx, dialer, endpoint)
	if err != nil {
		s.Error = err.Error()
		return s, err
	}
	defer conn.Close()

	for n := 1; n <= count; n++ {
		reply, err := conn.Do(ctx, "SET", TestKey(n), fmt.Sprintf("value-%d", n))
		if err == nil {
			_, err = reply.Text()
		}
		if err != nil {
			s.Error = fmt.Sprintf("SET %v: %v", TestKey(n), err)
			return s, err
		}
		s.Written++
	}
	s.Status = StatusSuccess
	log.Infof("Wrote %v test keys to %v.", s.Written, endpoint)
	return s, nil
}
