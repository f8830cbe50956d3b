package cron

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"
)

// PruneFunc drops entries that expired at now and returns how many it removed.
type PruneFunc func(now time.Time) int

// StatePruneJob sweeps expired search-cache entries, pending actions,
// admin sessions and empty quota buckets.
type StatePruneJob struct {
	Targets      map[string]PruneFunc
	Logger       *slog.Logger
	Now          func() time.Time // nil = time.Now
	ScheduleExpr string           // empty = default "*/5 * * * *"
}

var _ Job = (*StatePruneJob)(nil)

// Name implements Job.
func (j *StatePruneJob) Name() string { return "state_prune" }

// Schedule implements Job.
func (j *StatePruneJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run prunes every target in name order.
func (j *StatePruneJob) Run(ctx context.Context) error {
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	names := make([]string, 0, len(j.Targets))
	for name := range j.Targets {
		names = append(names, name)
	}
	slices.Sort(names)

	t := now()
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cron: state prune cancelled: %w", err)
		}
		if n := j.Targets[name](t); n > 0 {
			j.Logger.Info("cron: pruned expired state", "target", name, "count", n)
		}
	}
	return nil
}

// ChannelChecker verifies registered channels and drops the unreachable ones.
type ChannelChecker interface {
	CheckChannels(ctx context.Context) (removed int, err error)
}

// ChannelCheckJob periodically verifies that the bot can still reach every
// registered channel.
type ChannelCheckJob struct {
	Checker      ChannelChecker
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 * * * *"
}

var _ Job = (*ChannelCheckJob)(nil)

// Name implements Job.
func (j *ChannelCheckJob) Name() string { return "channel_check" }

// Schedule implements Job.
func (j *ChannelCheckJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run implements Job.
func (j *ChannelCheckJob) Run(ctx context.Context) error {
	removed, err := j.Checker.CheckChannels(ctx)
	if removed > 0 {
		j.Logger.Warn("cron: dropped unreachable channels", "count", removed)
	}
	if err != nil {
		return fmt.Errorf("cron: channel check: %w", err)
	}
	return nil
}
