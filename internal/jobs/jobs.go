// Package jobs hands deferred work to the external housekeeping worker.
// The portal only schedules; it never executes a job itself.
package jobs

import (
	"context"
	"fmt"
	"time"

	"hotspotportal/internal/logging"
	"hotspotportal/internal/models"
)

// KindRemoveUnverifiedAccount deletes an account that is still unverified
// when the job fires. The argument is the account id.
const KindRemoveUnverifiedAccount = "remove_unverified_account"

type Job struct {
	Kind        string
	Key         string
	Arg         string
	ScheduledAt time.Time
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// LogEnqueuer only records the request. Used where no worker consumes jobs.
type LogEnqueuer struct {
	Log logging.Logger
}

func (e LogEnqueuer) Enqueue(ctx context.Context, job Job) error {
	if e.Log != nil {
		e.Log.Info(ctx, "job scheduled", "kind", job.Kind, "key", job.Key, "arg", job.Arg, "scheduled_at", job.ScheduledAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// TxEnqueuer can write through a transaction-bound store, so the job commits
// or rolls back with the caller's other writes.
type TxEnqueuer interface {
	Enqueuer
	WithStore(st JobStore) Enqueuer
}

type JobStore interface {
	UpsertScheduledJob(ctx context.Context, job models.ScheduledJob) error
}

// SQLEnqueuer persists jobs to the scheduled_jobs table the worker polls.
type SQLEnqueuer struct {
	Store JobStore
	Now   func() time.Time
}

func (e SQLEnqueuer) WithStore(st JobStore) Enqueuer {
	e.Store = st
	return e
}

func (e SQLEnqueuer) Enqueue(ctx context.Context, job Job) error {
	if job.Kind == "" || job.Key == "" {
		return fmt.Errorf("enqueue: kind and key are required")
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	err := e.Store.UpsertScheduledJob(ctx, models.ScheduledJob{
		Key:         job.Key,
		Kind:        job.Kind,
		Arg:         job.Arg,
		ScheduledAt: job.ScheduledAt.UTC(),
		CreatedAt:   now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("enqueue %s/%s: %w", job.Kind, job.Key, err)
	}
	return nil
}

// RemoveUnverifiedAccount builds the expiry job for a fresh registration.
func RemoveUnverifiedAccount(accountID string, at time.Time) Job {
	return Job{Kind: KindRemoveUnverifiedAccount, Key: accountID, Arg: accountID, ScheduledAt: at}
}
