// Command dataloader is a Lambda function that seeds the source cluster with
// test keys before a rehearsal migration.
package main

import (
	"context"
	"net"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/validator"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	RedisEndpoint string `envconfig:"REDIS_ENDPOINT" required:"true"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	KeyCount      int    `envconfig:"KEY_COUNT" default:"50"`
	TimeoutMs     int    `envconfig:"TIMEOUT_MS" default:"30000"`
}

type Response struct {
	StatusCode int                    `json:"statusCode"`
	Body       *validator.LoadSummary `json:"body"`
}

type handler struct {
	conf   *Config
	dialer *net.Dialer
}

func (h *handler) handle(ctx context.Context) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.conf.TimeoutMs)*time.Millisecond)
	defer cancel()

	endpoint := validator.Address(h.conf.RedisEndpoint, h.conf.RedisPort)
	summary, err := validator.Load(ctx, h.dialer, endpoint, h.conf.KeyCount)
	if err != nil {
		log.Errorf("Loaded %v of %v keys into %v: %v", summary.Written, summary.Requested, endpoint, err)
		return &Response{StatusCode: 500, Body: summary}, nil
	}
	return &Response{StatusCode: 200, Body: summary}, nil
}

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	conf := &Config{}
	if err := envconfig.Process("", conf); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}
	h := &handler{conf: conf, dialer: &net.Dialer{}}
	lambda.Start(h.handle)
}
