// Package health implements readiness checks for the counting core's
// external dependencies.
package health

import (
	"context"
	"database/sql"

	"github.com/redis/go-redis/v9"
)

// DBChecker reports whether the results database is reachable.
type DBChecker struct {
	db *sql.DB
}

// NewDBChecker creates a checker over an open connection pool.
func NewDBChecker(db *sql.DB) *DBChecker {
	return &DBChecker{db: db}
}

// HealthCheck pings the database.
func (c *DBChecker) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// RedisChecker reports whether the rate-limit store is reachable.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a checker over an existing client.
func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

// HealthCheck sends a PING.
func (c *RedisChecker) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
