package main

import (
	"context"
	"net"
	"os"
	"testing"

	"github.com/gopinaath/elasticache-redis-account2account/migrator/pkg/validator"
	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	os.Clearenv()
	os.Setenv("REDIS_ENDPOINT", "c1.cache.amazonaws.com")

	conf := &Config{}
	require.Nil(t, envconfig.Process("", conf))
	require.Equal(t, 6379, conf.RedisPort)
	require.Equal(t, validator.DefaultKeyCount, conf.KeyCount)
	require.Equal(t, 30000, conf.TimeoutMs)
}

func TestHandle_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.Nil(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	h := &handler{
		conf:   &Config{RedisEndpoint: "127.0.0.1", RedisPort: port, KeyCount: 5, TimeoutMs: 1000},
		dialer: &net.Dialer{},
	}
	rsp, err := h.handle(context.Background())
	require.Nil(t, err)
	require.Equal(t, 500, rsp.StatusCode)
	require.Equal(t, 5, rsp.Body.Requested)
	require.Equal(t, 0, rsp.Body.Written)
	require.NotEmpty(t, rsp.Body.Error)
}
