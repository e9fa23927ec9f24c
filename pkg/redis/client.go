package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/milletlink/milletlink-backend/pkg/config"
	"github.com/milletlink/milletlink-backend/pkg/logger"
	"github.com/milletlink/milletlink-backend/pkg/types"
	"github.com/redis/go-redis/v9"
)

const (
	keyNamespace      = "ml"
	courierGeoPrefix  = "courier_geo"
	courierSeenPrefix = "courier_seen"
)

// Client wraps the redis connection helpers needed by the platform. The
// courier GEO index backing the candidate selector lives here.
type Client struct {
	raw *redis.Client
	cfg config.RedisConfig
}

// Pinger exposes the health-check surface.
type Pinger interface {
	Ping(context.Context) error
}

// New bootstraps a Redis client with pooling/timeouts and verifies connectivity.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	raw := redis.NewClient(opts)
	if err := raw.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{raw: raw, cfg: cfg}, nil
}

func optionsFromConfig(cfg config.RedisConfig) (*redis.Options, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	if opts.DB == 0 {
		opts.DB = cfg.DB
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

// CourierGeoKey returns the namespaced key of the courier location index.
func (c *Client) CourierGeoKey() string {
	return buildKey(courierGeoPrefix)
}

// CourierSeenKey returns the namespaced freshness key for one courier.
func (c *Client) CourierSeenKey(courierID uuid.UUID) string {
	return buildKey(courierSeenPrefix, courierID.String())
}

// UpdateCourierLocation upserts a courier's position in the GEO index.
func (c *Client) UpdateCourierLocation(ctx context.Context, courierID uuid.UUID, point types.Point) error {
	if c == nil || c.raw == nil {
		return errors.New("redis client not initialized")
	}
	if err := point.Validate(); err != nil {
		return err
	}
	return c.raw.GeoAdd(ctx, c.CourierGeoKey(), &redis.GeoLocation{
		Name:      courierID.String(),
		Longitude: point.Lng,
		Latitude:  point.Lat,
	}).Err()
}

// RemoveCourierLocation drops a courier from the GEO index.
func (c *Client) RemoveCourierLocation(ctx context.Context, courierID uuid.UUID) error {
	if c == nil || c.raw == nil {
		return errors.New("redis client not initialized")
	}
	return c.raw.ZRem(ctx, c.CourierGeoKey(), courierID.String()).Err()
}

// Nearby returns courier ids within radiusKM of the point, closest first.
// Entries that are not valid uuids are skipped.
func (c *Client) Nearby(ctx context.Context, point types.Point, radiusKM float64) ([]uuid.UUID, error) {
	if c == nil || c.raw == nil {
		return nil, errors.New("redis client not initialized")
	}
	names, err := c.raw.GeoSearch(ctx, c.CourierGeoKey(), &redis.GeoSearchQuery{
		Longitude:  point.Lng,
		Latitude:   point.Lat,
		Radius:     radiusKM,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("geo search: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(names))
	for _, name := range names {
		id, err := uuid.Parse(name)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return errors.New("redis client not initialized")
	}
	return c.raw.Ping(ctx).Err()
}

// Close shuts down the underlying client if available.
func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func buildKey(parts ...string) string {
	if len(parts) == 0 {
		return keyNamespace
	}
	clean := []string{keyNamespace}
	for _, part := range parts {
		if part == "" {
			continue
		}
		clean = append(clean, strings.TrimSpace(part))
	}
	return strings.Join(clean, ":")
}
