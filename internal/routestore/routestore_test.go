package routestore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v7"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"

	"github.com/nsl-router/nsl-router/internal/validate"
)

type recordingActivity struct {
	updated []string
}

func (a *recordingActivity) Update(_ context.Context, userID string) error {
	a.updated = append(a.updated, userID)
	return nil
}

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis, *recordingActivity) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	act := &recordingActivity{}
	store := New(rdb, clock.NewFake(), ttl, act)
	return store, mr, act
}

func TestRegisterAndGetRoutes(t *testing.T) {
	store, _, act := newTestStore(t, 10*time.Minute)
	ctx := context.Background()

	routes := []validate.Route{
		{IP: "10.0.0.1", Port: 443, Source: "vpn"},
		{IP: "10.0.0.2", Port: 8443, Source: "vpn"},
	}
	require.NoError(t, store.Register(ctx, "user-1", routes))
	require.Equal(t, []string{"user-1"}, act.updated)

	got, err := store.GetRoutes(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestRegisterDedupesWithinSource(t *testing.T) {
	store, _, _ := newTestStore(t, 10*time.Minute)
	ctx := context.Background()

	routes := []validate.Route{
		{IP: "10.0.0.1", Port: 443, Source: "vpn", Priority: 1},
		{IP: "10.0.0.1", Port: 443, Source: "vpn", Priority: 2},
	}
	require.NoError(t, store.Register(ctx, "user-1", routes))

	got, err := store.GetRoutes(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 2, got[0].Priority)
}

func TestRegisterReplacesOnlyTouchedSource(t *testing.T) {
	store, _, _ := newTestStore(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "user-1", []validate.Route{
		{IP: "10.0.0.1", Port: 443, Source: "vpn"},
	}))
	require.NoError(t, store.Register(ctx, "user-1", []validate.Route{
		{IP: "10.0.0.2", Port: 443, Source: "lan"},
	}))

	got, err := store.GetRoutes(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.NoError(t, store.Register(ctx, "user-1", []validate.Route{
		{IP: "10.0.0.3", Port: 443, Source: "vpn"},
	}))
	got, err = store.GetRoutes(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	ips := map[string]bool{}
	for _, r := range got {
		ips[r.IP] = true
	}
	require.True(t, ips["10.0.0.3"])
	require.True(t, ips["10.0.0.2"])
	require.False(t, ips["10.0.0.1"])
}

func TestRegisterRejectsEmptyRoutes(t *testing.T) {
	store, _, _ := newTestStore(t, 10*time.Minute)
	err := store.Register(context.Background(), "user-1", nil)
	require.Error(t, err)
}

func TestGetRoutesUnknownUserReturnsNil(t *testing.T) {
	store, _, _ := newTestStore(t, 10*time.Minute)
	got, err := store.GetRoutes(context.Background(), "nobody")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestDeleteRoutes(t *testing.T) {
	store, _, _ := newTestStore(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "user-1", []validate.Route{
		{IP: "10.0.0.1", Port: 443, Source: "vpn"},
	}))
	require.NoError(t, store.DeleteRoutes(ctx, "user-1"))

	got, err := store.GetRoutes(ctx, "user-1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestGetRoutesTTLNoKeys(t *testing.T) {
	store, _, _ := newTestStore(t, 10*time.Minute)
	ttl, err := store.GetRoutesTTL(context.Background(), "nobody")
	require.NoError(t, err)
	require.Equal(t, NoTTLSentinel, ttl)
}

func TestGetRoutesTTLMinimumAcrossSources(t *testing.T) {
	store, mr, _ := newTestStore(t, 10*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "user-1", []validate.Route{
		{IP: "10.0.0.1", Port: 443, Source: "vpn"},
	}))
	mr.SetTTL(leaseKey("user-1", "vpn"), 5*time.Second)

	ttl, err := store.GetRoutesTTL(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 5, ttl)
}

func TestRegisterRejectsInvalidRoute(t *testing.T) {
	store, _, _ := newTestStore(t, 10*time.Minute)
	err := store.Register(context.Background(), "user-1", []validate.Route{
		{IP: "not-an-ip", Port: 443, Source: "vpn"},
	})
	require.Error(t, err)
}
