package redisad_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	redisad "repscore/internal/adapters/redis"
	"repscore/internal/domain"
)

func TestCache_SetGetDel(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	ctx := context.Background()

	comp := 8.4
	snap := domain.Snapshot{ID: 7, HotelID: 42, Method: domain.MethodImport, Composite: &comp}

	var miss domain.Snapshot
	if ok, err := cache.Get(ctx, "latest:42", &miss); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := cache.Set(ctx, "latest:42", snap, 60); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got domain.Snapshot
	ok, err := cache.Get(ctx, "latest:42", &got)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.ID != 7 || got.HotelID != 42 || got.Composite == nil || *got.Composite != 8.4 {
		t.Fatalf("unexpected value: %+v", got)
	}

	if err := cache.Del(ctx, "latest:42"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if ok, _ := cache.Get(ctx, "latest:42", &got); ok {
		t.Fatal("expected miss after Del")
	}
}
