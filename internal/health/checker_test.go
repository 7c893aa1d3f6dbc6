package health

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"

	"github.com/uniwahl/zaehlwerk/internal/testdb"
)

func TestDBChecker_Ping(t *testing.T) {
	conn := testdb.New(t)
	checker := NewDBChecker(conn)
	if err := checker.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestRedisChecker_UnreachableFails(t *testing.T) {
	// A cancelled context against a dead address must surface an error
	// instead of reporting ready.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { _ = client.Close() })

	checker := NewRedisChecker(client)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := checker.HealthCheck(ctx); err == nil {
		t.Error("HealthCheck() with cancelled context returned nil error")
	}
}
