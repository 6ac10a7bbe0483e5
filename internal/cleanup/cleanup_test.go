package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/require"

	"github.com/nsl-router/nsl-router/internal/identity"
	"github.com/nsl-router/nsl-router/internal/logging"
)

type fakeIdentities struct {
	records map[string]*identity.Record
	cleared []string
}

func (f *fakeIdentities) GetByID(_ context.Context, userID string) (*identity.Record, error) {
	return f.records[userID], nil
}

func (f *fakeIdentities) ClearDomainAssignment(_ context.Context, userID string) error {
	f.cleared = append(f.cleared, userID)
	delete(f.records, userID)
	return nil
}

type fakeActivity struct {
	inactive  []string
	timestamp map[string]*int64
	removed   []string
}

func (f *fakeActivity) GetInactiveSince(_ context.Context, _ int) ([]string, error) {
	return f.inactive, nil
}

func (f *fakeActivity) GetTimestamp(_ context.Context, userID string) (*int64, error) {
	return f.timestamp[userID], nil
}

func (f *fakeActivity) Remove(_ context.Context, userID string) error {
	f.removed = append(f.removed, userID)
	return nil
}

func TestRunReleasesInactiveDomainOwners(t *testing.T) {
	identities := &fakeIdentities{records: map[string]*identity.Record{
		"user-1": {UserID: "user-1", DomainName: "myapp"},
	}}
	act := &fakeActivity{inactive: []string{"user-1"}, timestamp: map[string]*int64{}}

	ctl := New(identities, act, logging.NewNop(), 30, clock.NewFake())
	result, err := ctl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.ReleasedCount)
	require.Equal(t, []string{"myapp"}, result.Domains)
	require.Equal(t, []string{"user-1"}, identities.cleared)
	require.Equal(t, []string{"user-1"}, act.removed)
}

func TestRunSkipsUsersWithoutDomain(t *testing.T) {
	identities := &fakeIdentities{records: map[string]*identity.Record{
		"user-1": {UserID: "user-1"},
	}}
	act := &fakeActivity{inactive: []string{"user-1"}, timestamp: map[string]*int64{}}

	ctl := New(identities, act, logging.NewNop(), 30, clock.NewFake())
	result, err := ctl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.ReleasedCount)
	require.Empty(t, identities.cleared)
	require.Equal(t, []string{"user-1"}, act.removed)
}

func TestRunSkipsMissingRecordButClearsActivity(t *testing.T) {
	identities := &fakeIdentities{records: map[string]*identity.Record{}}
	act := &fakeActivity{inactive: []string{"ghost"}, timestamp: map[string]*int64{}}

	ctl := New(identities, act, logging.NewNop(), 30, clock.NewFake())
	result, err := ctl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, result.ReleasedCount)
	require.Equal(t, []string{"ghost"}, act.removed)
}

func TestRunIsIdempotent(t *testing.T) {
	identities := &fakeIdentities{records: map[string]*identity.Record{
		"user-1": {UserID: "user-1", DomainName: "myapp"},
	}}
	act := &fakeActivity{inactive: []string{"user-1"}, timestamp: map[string]*int64{}}

	ctl := New(identities, act, logging.NewNop(), 30, clock.NewFake())
	first, err := ctl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, first.ReleasedCount)

	act.inactive = nil
	second, err := ctl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, second.ReleasedCount)
}

func TestRunComputesActualInactiveDaysFromTimestamp(t *testing.T) {
	fc := clock.NewFake()
	fc.Set(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))

	lastSeen := fc.Now().Add(-45 * 24 * time.Hour).UnixMilli()
	identities := &fakeIdentities{records: map[string]*identity.Record{
		"user-1": {UserID: "user-1", DomainName: "myapp"},
	}}
	act := &fakeActivity{
		inactive:  []string{"user-1"},
		timestamp: map[string]*int64{"user-1": &lastSeen},
	}

	logPath := filepath.Join(t.TempDir(), "domain-events.log")
	log, err := logging.New(logPath)
	require.NoError(t, err)

	ctl := New(identities, act, log, 30, fc)
	result, err := ctl.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.ReleasedCount)

	require.NoError(t, log.Close())
	contents, err := os.ReadFile(logPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "RELEASED myapp from user-1 (inactive 45 days)")
}
