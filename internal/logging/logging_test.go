package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCreatesAuditLogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "domain-events.log")

	log, err := New(path)
	require.NoError(t, err)
	defer log.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
}

func TestAssignedAppendsAuditLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domain-events.log")

	log, err := New(path)
	require.NoError(t, err)

	log.Assigned("myapp", "user-1")
	require.NoError(t, log.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "ASSIGNED myapp to user-1")
}

func TestReleasedAppendsAuditLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "domain-events.log")

	log, err := New(path)
	require.NoError(t, err)

	log.Released("myapp", "user-1", 30)
	require.NoError(t, log.Close())

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(contents), "RELEASED myapp from user-1 (inactive 30 days)")
}

func TestNewNopDoesNotPanic(t *testing.T) {
	log := NewNop()
	log.Notice("hello %s", "world")
	log.Warning("careful %s", "there")
	log.Assigned("myapp", "user-1")
	log.Released("myapp", "user-1", 1)
	log.Sync()
	require.NoError(t, log.Close())
}
