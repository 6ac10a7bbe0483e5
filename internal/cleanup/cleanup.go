// Package cleanup implements the Cleanup Controller: the scheduled
// subsystem that reclaims subdomain labels whose owners have gone silent
// for too long, plus the cron wiring that triggers it daily.
package cleanup

import (
	"context"
	"time"

	"github.com/jmhodges/clock"
	"github.com/robfig/cron/v3"

	"github.com/nsl-router/nsl-router/internal/identity"
	"github.com/nsl-router/nsl-router/internal/logging"
)

type identityReleaser interface {
	GetByID(ctx context.Context, userID string) (*identity.Record, error)
	ClearDomainAssignment(ctx context.Context, userID string) error
}

type activityStore interface {
	GetInactiveSince(ctx context.Context, days int) ([]string, error)
	GetTimestamp(ctx context.Context, userID string) (*int64, error)
	Remove(ctx context.Context, userID string) error
}

// Result is the outcome of one cleanup pass.
type Result struct {
	ReleasedCount int      `json:"releasedCount"`
	Domains       []string `json:"domains"`
}

// Controller is the Cleanup Controller.
type Controller struct {
	identities   identityReleaser
	activity     activityStore
	log          *logging.AuditLogger
	inactiveDays int
	clock        clock.Clock

	cronRunner *cron.Cron
}

// New builds a Controller that reclaims labels after inactiveDays of
// silence.
func New(identities identityReleaser, activity activityStore, log *logging.AuditLogger, inactiveDays int, clk clock.Clock) *Controller {
	return &Controller{
		identities:   identities,
		activity:     activity,
		log:          log,
		inactiveDays: inactiveDays,
		clock:        clk,
	}
}

// Run executes one cleanup pass. Each user id's reclaim pipeline is
// isolated: a failure for one user is logged and does not abort the
// others. The pass is idempotent; re-running it immediately releases
// nothing further, since the activity entries for released users have
// already been removed.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	ids, err := c.activity.GetInactiveSince(ctx, c.inactiveDays)
	if err != nil {
		return Result{}, err
	}

	result := Result{Domains: []string{}}
	for _, userID := range ids {
		label, released := c.reclaim(ctx, userID)
		if released {
			result.Domains = append(result.Domains, label)
		}
	}
	result.ReleasedCount = len(result.Domains)
	return result, nil
}

// reclaim runs the per-user release pipeline described in the Cleanup
// Controller design. It never propagates an error to the caller: a
// failure here is logged and the loop in Run continues with the next id.
func (c *Controller) reclaim(ctx context.Context, userID string) (label string, released bool) {
	rec, err := c.identities.GetByID(ctx, userID)
	if err != nil {
		c.log.Warning("cleanup: failed to fetch identity for %s: %s", userID, err)
		return "", false
	}
	if rec == nil || rec.DomainName == "" {
		if err := c.activity.Remove(ctx, userID); err != nil {
			c.log.Warning("cleanup: failed to remove stale activity entry for %s: %s", userID, err)
		}
		return "", false
	}

	inactiveDays := c.inactiveDays
	if ts, err := c.activity.GetTimestamp(ctx, userID); err == nil && ts != nil {
		elapsed := c.clock.Now().UTC().Sub(time.UnixMilli(*ts))
		inactiveDays = int(elapsed / (24 * time.Hour))
	}

	c.log.Released(rec.DomainName, userID, inactiveDays)

	if err := c.identities.ClearDomainAssignment(ctx, userID); err != nil {
		c.log.Warning("cleanup: failed to clear domain assignment for %s: %s", userID, err)
		return "", false
	}
	if err := c.activity.Remove(ctx, userID); err != nil {
		c.log.Warning("cleanup: failed to remove activity entry for %s: %s", userID, err)
	}
	return rec.DomainName, true
}

// StartSchedule wires Run to fire on the given cron schedule (process
// local time), matching CLEANUP_CRON_SCHEDULE's default of "0 3 * * *".
func (c *Controller) StartSchedule(schedule string) error {
	c.cronRunner = cron.New()
	_, err := c.cronRunner.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := c.Run(ctx); err != nil {
			c.log.Warning("scheduled cleanup pass failed: %s", err)
		}
	})
	if err != nil {
		return err
	}
	c.cronRunner.Start()
	return nil
}

// Stop drains the cron scheduler, if one was started.
func (c *Controller) Stop() {
	if c.cronRunner != nil {
		ctx := c.cronRunner.Stop()
		<-ctx.Done()
	}
}
