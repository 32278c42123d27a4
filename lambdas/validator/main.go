// Command validator is the Lambda function deployed next to the target
// cluster. It reports whether the cluster holds enough keys.
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
	KeyThreshold  int64  `envconfig:"KEY_THRESHOLD" default:"40"`
	TimeoutMs     int    `envconfig:"TIMEOUT_MS" default:"5000"`
}

type handler struct {
	conf   *Config
	dialer *net.Dialer
}

func (h *handler) handle(ctx context.Context) (*validator.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.conf.TimeoutMs)*time.Millisecond)
	defer cancel()

	endpoint := validator.Address(h.conf.RedisEndpoint, h.conf.RedisPort)
	summary, err := validator.Validate(ctx, h.dialer, endpoint, h.conf.KeyThreshold)
	if err != nil {
		log.Errorf("Could not validate %v: %v", endpoint, err)
	}
	return validator.NewResponse(summary), nil
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
