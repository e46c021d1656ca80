//go:build integration

package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

type redisMode struct {
	name  string
	setup func(t *testing.T) redis.UniversalClient
}

func redisModes() []redisMode {
	return []redisMode{
		{name: "miniredis", setup: func(t *testing.T) redis.UniversalClient {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return rdb
		}},
		{name: "redis7", setup: setupRedisContainer},
	}
}

func setupRedisContainer(t *testing.T) redis.UniversalClient {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisCompatLifecycle(t *testing.T) {
	for _, mode := range redisModes() {
		t.Run(mode.name, func(t *testing.T) {
			store := NewStore(mode.setup(t), "compat")
			ctx := context.Background()

			for _, sid := range []string{"sid-a", "sid-b"} {
				if err := store.Save(ctx, testSession(sid, "user-compat"), time.Hour); err != nil {
					t.Fatalf("save %s: %v", sid, err)
				}
			}
			if live, err := store.ListForUser(ctx, "user-compat"); err != nil || len(live) != 2 {
				t.Fatalf("list = %d, %v", len(live), err)
			}

			if err := store.Delete(ctx, "sid-a"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if err := store.Delete(ctx, "sid-a"); err != nil {
				t.Fatalf("second delete: %v", err)
			}

			deleted, err := store.DeleteAllForUser(ctx, "user-compat")
			if err != nil || deleted != 1 {
				t.Fatalf("delete all = %d, %v", deleted, err)
			}
			if _, err := store.Get(ctx, "sid-b"); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("expected ErrSessionNotFound, got %v", err)
			}
		})
	}
}

func TestRedisCompatTouchDoesNotResurrect(t *testing.T) {
	for _, mode := range redisModes() {
		t.Run(mode.name, func(t *testing.T) {
			store := NewStore(mode.setup(t), "compat")
			ctx := context.Background()

			if err := store.Touch(ctx, "missing", time.Hour); !errors.Is(err, ErrSessionNotFound) {
				t.Fatalf("touch missing: %v", err)
			}
			if ok, err := store.Exists(ctx, "missing"); err != nil || ok {
				t.Fatalf("exists = %v, %v", ok, err)
			}
		})
	}
}
