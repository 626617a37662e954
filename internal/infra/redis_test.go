package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()+"/0", RedisOptions{PoolSize: 4, DialTimeout: time.Second})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	if got := client.Options().PoolSize; got != 4 {
		t.Fatalf("expected pool size 4, got %d", got)
	}
	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, _ := mr.Get("k"); v != "v" {
		t.Fatalf("value not stored, got %q", v)
	}
}

func TestNewRedisClientErrors(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "", RedisOptions{}); err == nil {
		t.Fatalf("expected error for empty url")
	}
	if _, err := NewRedisClient(context.Background(), "://bad", RedisOptions{}); err == nil {
		t.Fatalf("expected error for malformed url")
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedisClient(context.Background(), "redis://"+addr, RedisOptions{DialTimeout: 200 * time.Millisecond}); err == nil {
		t.Fatalf("expected ping failure against a stopped server")
	}
}
