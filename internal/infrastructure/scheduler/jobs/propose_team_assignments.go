// Package jobs contains the scheduled jobs of the matching worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alem-hub/afterschool-matching/internal/application/command"
	"github.com/alem-hub/afterschool-matching/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/afterschool-matching/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROPOSE TEAM ASSIGNMENTS JOB
// Builds a fresh PENDING proposal for every configured team. A per-team lock
// keeps two worker instances from proposing for the same team at once.
// ══════════════════════════════════════════════════════════════════════════════

// Proposer creates assignment proposals.
type Proposer interface {
	Handle(ctx context.Context, cmd command.ProposeAssignmentsCommand) (*command.ProposeAssignmentsResult, error)
}

// Locker takes short-lived distributed locks.
type Locker interface {
	TryLock(ctx context.Context, resource string, ttl time.Duration) (func(context.Context) error, error)
}

// ProposeTeamAssignmentsConfig configures the job.
type ProposeTeamAssignmentsConfig struct {
	// Teams to propose for, in order.
	Teams []string

	// BatchTimeout bounds a single team's proposal.
	BatchTimeout time.Duration

	// LockTTL is how long a team lock lives if the holder dies. It should
	// exceed BatchTimeout.
	LockTTL time.Duration
}

// TeamOutcome is what happened to one team in a run.
type TeamOutcome struct {
	TeamID     string
	ProposalID string
	Assigned   int
	Excluded   int
	Skipped    bool
	Err        error
}

// RunStats summarises the last run.
type RunStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Teams     []TeamOutcome
}

// Failed returns the number of teams whose proposal failed.
func (s RunStats) Failed() int {
	n := 0
	for _, t := range s.Teams {
		if t.Err != nil {
			n++
		}
	}
	return n
}

// ProposeTeamAssignmentsJob proposes assignments for configured teams.
type ProposeTeamAssignmentsJob struct {
	proposer Proposer
	locker   Locker
	cfg      ProposeTeamAssignmentsConfig
	log      *logger.Logger

	lastStats atomic.Pointer[RunStats]
}

// NewProposeTeamAssignmentsJob creates the job. A nil locker runs without
// cross-instance locking.
func NewProposeTeamAssignmentsJob(proposer Proposer, locker Locker, cfg ProposeTeamAssignmentsConfig, log *logger.Logger) *ProposeTeamAssignmentsJob {
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 2 * time.Minute
	}
	if cfg.LockTTL < cfg.BatchTimeout {
		cfg.LockTTL = cfg.BatchTimeout + 30*time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ProposeTeamAssignmentsJob{
		proposer: proposer,
		locker:   locker,
		cfg:      cfg,
		log:      log.Named("propose_team_assignments"),
	}
}

// Name returns the job name.
func (j *ProposeTeamAssignmentsJob) Name() string {
	return "propose_team_assignments"
}

// Description returns a human-readable description.
func (j *ProposeTeamAssignmentsJob) Description() string {
	return "Creates pending assignment proposals for configured teams"
}

// LastStats returns the stats of the last completed run, or nil.
func (j *ProposeTeamAssignmentsJob) LastStats() *RunStats {
	return j.lastStats.Load()
}

// Run proposes for each team in turn. A failing team does not stop the
// others; all failures are returned joined.
func (j *ProposeTeamAssignmentsJob) Run(ctx context.Context) error {
	stats := &RunStats{StartedAt: time.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastStats.Store(stats)
	}()

	var errs []error
	for _, team := range j.cfg.Teams {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		out := j.proposeTeam(ctx, team)
		stats.Teams = append(stats.Teams, out)
		if out.Err != nil {
			errs = append(errs, fmt.Errorf("team %s: %w", team, out.Err))
		}
	}

	j.log.Info("team proposals finished",
		logger.Int("teams", len(stats.Teams)),
		logger.Int("failed", stats.Failed()),
		logger.Latency(time.Since(stats.StartedAt)),
	)
	return errors.Join(errs...)
}

func (j *ProposeTeamAssignmentsJob) proposeTeam(ctx context.Context, team string) TeamOutcome {
	out := TeamOutcome{TeamID: team}
	log := j.log.With(logger.TeamID(team))

	if j.locker != nil {
		release, err := j.locker.TryLock(ctx, "propose:"+team, j.cfg.LockTTL)
		if errors.Is(err, redis.ErrLockHeld) {
			log.Info("team proposal already running elsewhere, skipping")
			out.Skipped = true
			return out
		}
		if err != nil {
			out.Err = fmt.Errorf("acquire lock: %w", err)
			return out
		}
		defer func() {
			// The batch context may be done by now.
			if err := release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release team lock", logger.Err(err))
			}
		}()
	}

	batchCtx, cancel := context.WithTimeout(ctx, j.cfg.BatchTimeout)
	defer cancel()

	res, err := j.proposer.Handle(batchCtx, command.ProposeAssignmentsCommand{
		TeamID:        team,
		CorrelationID: "scheduler:" + j.Name(),
	})
	if err != nil {
		log.Error("team proposal failed", logger.Err(err))
		out.Err = err
		return out
	}

	out.ProposalID = res.Proposal.ID
	out.Assigned = res.Proposal.Summary.AssignedCount
	out.Excluded = res.Proposal.Summary.ExcludedCount
	return out
}
