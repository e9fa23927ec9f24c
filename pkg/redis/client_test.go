package redis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/milletlink/milletlink-backend/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKeySkipsEmptyParts(t *testing.T) {
	assert.Equal(t, "ml:courier_geo", buildKey(courierGeoPrefix))
	assert.Equal(t, "ml:a:b", buildKey("a", "", "b"))
	assert.Equal(t, "ml", buildKey())
}

func TestCourierKeys(t *testing.T) {
	c := &Client{}
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	assert.Equal(t, "ml:courier_geo", c.CourierGeoKey())
	assert.Equal(t, "ml:courier_seen:"+id.String(), c.CourierSeenKey(id))
}

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{Address: "localhost:6379", PoolSize: 5})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 5, opts.PoolSize)
}

func TestOptionsFromConfigParsesURL(t *testing.T) {
	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://:secret@redis.internal:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "secret", opts.Password)
}
