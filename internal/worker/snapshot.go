package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/mtlprog/finances/internal/domain"
	"github.com/mtlprog/finances/internal/portfolio"
	"github.com/mtlprog/finances/internal/snapshot"
)

// SnapshotGenerator defines the interface for generating snapshots.
type SnapshotGenerator interface {
	Generate(ctx context.Context, userID uuid.UUID, date time.Time) (snapshot.Data, error)
}

// UserLister lists the users that hold positions.
type UserLister interface {
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
}

// AfterSnapshotHook is called after each successful snapshot generation.
type AfterSnapshotHook interface {
	AfterSnapshot(ctx context.Context, userID uuid.UUID, date time.Time, s portfolio.Summary) error
}

// SnapshotWorker stores a daily portfolio snapshot for every user on a cron schedule.
type SnapshotWorker struct {
	generator SnapshotGenerator
	users     UserLister
	schedule  string
	hook      AfterSnapshotHook // optional
	now       func() time.Time
}

// NewSnapshotWorker creates a SnapshotWorker. schedule is a standard five-field cron
// expression or descriptor such as "@daily", evaluated in UTC.
func NewSnapshotWorker(generator SnapshotGenerator, users UserLister, schedule string, hook AfterSnapshotHook) (*SnapshotWorker, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parsing snapshot schedule %q: %w", schedule, err)
	}
	return &SnapshotWorker{
		generator: generator,
		users:     users,
		schedule:  schedule,
		hook:      hook,
		now:       time.Now,
	}, nil
}

// runHook calls the post-generation hook if one is configured.
func (w *SnapshotWorker) runHook(ctx context.Context, userID uuid.UUID, date time.Time, data snapshot.Data) {
	if w.hook == nil {
		return
	}
	if err := w.hook.AfterSnapshot(ctx, userID, date, data.Summary); err != nil {
		slog.Error("SnapshotWorker: export hook failed", "user", userID, "error", err)
	}
}

// RunOnce snapshots every user for today and returns how many snapshots were stored.
// A failure for one user does not stop the others.
func (w *SnapshotWorker) RunOnce(ctx context.Context) (int, error) {
	users, err := w.users.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing users: %w", err)
	}

	date := domain.CivilDate(w.now().UTC())
	stored := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return stored, ctx.Err()
		}
		data, err := w.generator.Generate(ctx, userID, date)
		if err != nil {
			slog.Error("SnapshotWorker: generation failed", "user", userID, "error", err)
			continue
		}
		stored++
		w.runHook(ctx, userID, date, data)
	}
	return stored, nil
}

func (w *SnapshotWorker) run(ctx context.Context, phase string) {
	n, err := w.RunOnce(ctx)
	if err != nil {
		slog.Error("SnapshotWorker: "+phase+" generation failed", "stored", n, "error", err)
		return
	}
	slog.Info("SnapshotWorker: "+phase+" generation completed", "stored", n)
}

// Run generates snapshots immediately, then on every schedule tick. It blocks until the
// context is cancelled.
func (w *SnapshotWorker) Run(ctx context.Context) {
	slog.Info("SnapshotWorker: starting", "schedule", w.schedule)

	w.run(ctx, "initial")

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(w.schedule, func() { w.run(ctx, "scheduled") }); err != nil {
		slog.Error("SnapshotWorker: registering schedule failed", "error", err)
		return
	}
	c.Start()

	<-ctx.Done()
	slog.Info("SnapshotWorker: shutting down")
	<-c.Stop().Done()
}
