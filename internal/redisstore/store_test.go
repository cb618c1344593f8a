package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	s := New(client, "")
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestGetUnset(t *testing.T) {
	s, _ := newTestStore(t)

	v, ok, err := s.Get(context.Background(), "scheduled_posts")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || v != nil {
		t.Errorf("Get(unset) = %q, %v; want nil, false", v, ok)
	}
}

func TestSetGetPrefixed(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.Set(ctx, "scheduled_posts", []byte(`[]`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get(ctx, "scheduled_posts")
	if err != nil || !ok || string(v) != `[]` {
		t.Fatalf("Get = %q, %v, %v", v, ok, err)
	}

	raw, err := mr.Get("draftr:scheduled_posts")
	if err != nil {
		t.Fatalf("miniredis Get: %v", err)
	}
	if raw != `[]` {
		t.Errorf("raw key value = %q", raw)
	}
}

func TestUnavailable(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	if err := s.Set(context.Background(), "k", []byte("v")); err == nil {
		t.Error("expected Set to fail when redis is unavailable")
	}
	if _, _, err := s.Get(context.Background(), "k"); err == nil {
		t.Error("expected Get to fail when redis is unavailable")
	}
}

func TestDial(t *testing.T) {
	mr := miniredis.RunT(t)

	s, err := Dial(context.Background(), "redis://"+mr.Addr()+"/0")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer s.Close()

	if _, err := Dial(context.Background(), "not a url"); err == nil {
		t.Error("expected error for malformed url")
	}
}
