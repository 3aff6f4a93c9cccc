package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/comorbidity/pkg/common/config"
	"github.com/synaptica-ai/comorbidity/pkg/common/logger"
)

func TestPostgresDSN(t *testing.T) {
	cfg := &config.Config{
		PostgresHost:     "db",
		PostgresPort:     "5433",
		PostgresUser:     "mimic",
		PostgresPassword: "secret",
		PostgresDB:       "mimiciv",
		PostgresSSLMode:  "disable",
	}
	assert.Equal(t, "host=db user=mimic password=secret dbname=mimiciv port=5433 sslmode=disable", PostgresDSN(cfg))
}

func TestOpenRedisPings(t *testing.T) {
	logger.Silence()
	mr := miniredis.RunT(t)
	cfg := &config.Config{RedisHost: mr.Host(), RedisPort: mr.Port()}

	client, err := OpenRedis(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	client2, err := OpenRedis(context.Background(), cfg)
	assert.Error(t, err)
	assert.NotNil(t, client2)
	client2.Close()
}
