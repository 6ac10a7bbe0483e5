// Package routestore implements the Route Store: an ephemeral,
// lease-based registry of (userId -> routes[]) partitioned by advertising
// source, backed by Redis for per-key TTL and pipelined multi-key access.
package routestore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/jmhodges/clock"

	"github.com/nsl-router/nsl-router/internal/apperrors"
	"github.com/nsl-router/nsl-router/internal/validate"
)

// NoTTLSentinel is returned by GetRoutesTTL when no source key exists for
// a user, matching Redis's own "key does not exist" TTL sentinel.
const NoTTLSentinel = -2

// activityUpdater is the narrow slice of the Activity Tracker the Route
// Store depends on.
type activityUpdater interface {
	Update(ctx context.Context, userID string) error
}

// Store is the Route Store. It keeps an in-process, append-only set of
// known (userId, source) pairs: a fresh process does not enumerate the
// shared Redis key space with a wildcard scan, and instead self-heals as
// sources refresh on their own TTL/2 cadence. This is a deliberate
// trade of slightly stale knowledge against avoiding O(n) scans of a
// keyspace shared with other tenants.
type Store struct {
	rdb      *redis.Client
	clock    clock.Clock
	ttl      time.Duration
	activity activityUpdater

	mu           sync.RWMutex
	knownSources map[string]map[string]struct{} // userID -> set of source tags
}

// New builds a Store with the given lease TTL.
func New(rdb *redis.Client, clk clock.Clock, ttl time.Duration, activity activityUpdater) *Store {
	return &Store{
		rdb:          rdb,
		clock:        clk,
		ttl:          ttl,
		activity:     activity,
		knownSources: make(map[string]map[string]struct{}),
	}
}

func leaseKey(userID, source string) string {
	return "routes:" + userID + ":" + source
}

// Register validates, groups by source, deduplicates within each group,
// and atomically replaces each (userId, source) lease via a pipeline so
// the TTL windows of every source touched in this call line up. Leases
// belonging to other sources for this user are left untouched, including
// their TTL.
func (s *Store) Register(ctx context.Context, userID string, routes []validate.Route) error {
	if len(routes) == 0 {
		return apperrors.ValidationError("register requires at least one route")
	}

	normalized := make([]validate.Route, len(routes))
	for i, r := range routes {
		if err := validate.ValidateRoute(r); err != nil {
			return err
		}
		normalized[i] = r.Normalize()
	}

	bySource := make(map[string][]validate.Route)
	var sourceOrder []string
	for _, r := range normalized {
		if _, seen := bySource[r.Source]; !seen {
			sourceOrder = append(sourceOrder, r.Source)
		}
		bySource[r.Source] = append(bySource[r.Source], r)
	}

	_, err := s.rdb.WithContext(ctx).Pipelined(func(pipe redis.Pipeliner) error {
		for _, source := range sourceOrder {
			deduped := dedupe(bySource[source])
			payload, err := json.Marshal(deduped)
			if err != nil {
				return err
			}
			pipe.Set(leaseKey(userID, source), payload, s.ttl)
		}
		return nil
	})
	if err != nil {
		return apperrors.InfrastructureError("registering routes: %s", err)
	}

	s.mu.Lock()
	set, ok := s.knownSources[userID]
	if !ok {
		set = make(map[string]struct{})
		s.knownSources[userID] = set
	}
	for _, source := range sourceOrder {
		set[source] = struct{}{}
	}
	s.mu.Unlock()

	if err := s.activity.Update(ctx, userID); err != nil {
		return err
	}
	return nil
}

// dedupe collapses routes sharing a composite (ip, port, scheme, type,
// domain) key, keeping the last occurrence but preserving the order in
// which each distinct key first appeared.
func dedupe(routes []validate.Route) []validate.Route {
	order := make([]string, 0, len(routes))
	latest := make(map[string]validate.Route, len(routes))
	for _, r := range routes {
		key := r.DedupeKey()
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = r
	}
	out := make([]validate.Route, len(order))
	for i, key := range order {
		out[i] = latest[key]
	}
	return out
}

func (s *Store) sourcesFor(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set, ok := s.knownSources[userID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(set))
	for source := range set {
		out = append(out, source)
	}
	return out
}

// GetRoutes gathers all known source keys for userID, fetches them in one
// multi-key read, and concatenates the parsed arrays in the order the
// store returned them. If every key is absent or expired, it returns
// (nil, nil).
func (s *Store) GetRoutes(ctx context.Context, userID string) ([]validate.Route, error) {
	sources := s.sourcesFor(userID)
	if len(sources) == 0 {
		return nil, nil
	}

	keys := make([]string, len(sources))
	for i, source := range sources {
		keys[i] = leaseKey(userID, source)
	}

	values, err := s.rdb.WithContext(ctx).MGet(keys...).Result()
	if err != nil {
		return nil, apperrors.InfrastructureError("fetching routes: %s", err)
	}

	var all []validate.Route
	for _, v := range values {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var batch []validate.Route
		if err := json.Unmarshal([]byte(raw), &batch); err != nil {
			return nil, apperrors.InfrastructureError("decoding stored routes: %s", err)
		}
		all = append(all, batch...)
	}
	return all, nil
}

// DeleteRoutes deletes every source key known for userID.
func (s *Store) DeleteRoutes(ctx context.Context, userID string) error {
	sources := s.sourcesFor(userID)
	if len(sources) == 0 {
		return nil
	}
	keys := make([]string, len(sources))
	for i, source := range sources {
		keys[i] = leaseKey(userID, source)
	}
	if err := s.rdb.WithContext(ctx).Del(keys...).Err(); err != nil {
		return apperrors.InfrastructureError("deleting routes: %s", err)
	}
	return nil
}

// GetRoutesTTL returns the minimum positive TTL, in seconds, across every
// existing source key for userID, or NoTTLSentinel if no key exists.
func (s *Store) GetRoutesTTL(ctx context.Context, userID string) (int, error) {
	sources := s.sourcesFor(userID)
	if len(sources) == 0 {
		return NoTTLSentinel, nil
	}

	min := -1
	for _, source := range sources {
		ttl, err := s.rdb.WithContext(ctx).TTL(leaseKey(userID, source)).Result()
		if err != nil {
			return 0, apperrors.InfrastructureError("fetching route TTL: %s", err)
		}
		seconds := int(ttl.Seconds())
		if seconds <= 0 {
			continue
		}
		if min == -1 || seconds < min {
			min = seconds
		}
	}
	if min == -1 {
		return NoTTLSentinel, nil
	}
	return min, nil
}
