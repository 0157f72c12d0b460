package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGetDelete(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	ctx := context.Background()

	if !c.Set(ctx, "k", []byte("v"), time.Minute) {
		t.Fatalf("Set refused")
	}
	c.Wait()
	got, ok := c.Get(ctx, "k")
	if !ok || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	c.Delete(ctx, "k")
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected miss after Delete")
	}
}

func TestCache_ZeroTTLNotStored(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	if c.Set(context.Background(), "k", []byte("v"), 0) {
		t.Fatalf("zero TTL must not be stored")
	}
	c.Wait()
	if _, ok := c.Get(context.Background(), "k"); ok {
		t.Fatalf("unexpected hit")
	}
}

func TestCache_Expires(t *testing.T) {
	c, err := New(1 << 20)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), 20*time.Millisecond)
	c.Wait()
	time.Sleep(60 * time.Millisecond)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatalf("expected entry to expire")
	}
}
