// Package replicator implements the replicator core: the poll cycle,
// pairing, conflict-resolution dispatch, migration and refresh modes,
// and the consistency audit, following the constructor-plus-method
// shape of a tracker-sync engine generalized from a single pluggable
// tracker to the two fixed concrete adapters this system replicates
// between.
package replicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/telemetry"
	"github.com/replicateio/tbridge/internal/translate"
	"github.com/replicateio/tbridge/internal/types"
)

// FieldMapping pairs one issue field with one job field and the
// translator that converts between them.
type FieldMapping struct {
	IssueField string
	JobField   string
	Translator translate.Translator
}

// ConflictPolicy selects which side wins when both an issue and its
// paired job changed in the same poll cycle.
type ConflictPolicy int

const (
	// PolicySide0Wins is the default: the issue tracker's edit
	// overwrites the job store, and a notification is sent.
	PolicySide0Wins ConflictPolicy = iota
	// PolicySide1Wins overwrites the issue tracker from the job
	// store instead.
	PolicySide1Wins
	// PolicyNoOp leaves both sides untouched and merely notifies.
	PolicyNoOp
)

func (p ConflictPolicy) String() string {
	switch p {
	case PolicySide0Wins:
		return "side0-wins"
	case PolicySide1Wins:
		return "side1-wins"
	case PolicyNoOp:
		return "no-op"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

// Config holds the replicator's static, per-instance configuration.
type Config struct {
	RID                  string
	SID                  string
	PollPeriod           time.Duration
	FieldMap             []FieldMapping
	ConflictPolicy       ConflictPolicy
	UsePerforceJobnames  bool
	ReplicableStatus     func(types.Issue) bool
	NewJobPredicate      jobstore.NewJobPredicate
	FixesEnabled         bool
	BookkeepingSide0ID   string
	BookkeepingSide1User string
}

// Engine is the replicator core. Its only process-wide state is
// JobUpdates (cleared at the start of every poll cycle) and the
// current poll period (grown on failure, reset on success); the
// adapters it drives hold no shared mutable state with each other.
type Engine struct {
	Issues IssueStore
	Jobs   JobStore
	Cfg    Config

	JobUpdates map[string]int

	Directories *translate.UserDirectories

	notify Notifier
}

// Notifier abstracts the mail/report dispatch the core invokes for
// conflicts, overwrites, and failures, so the engine does not depend
// directly on a transport.
type Notifier interface {
	NotifyConflict(ctx context.Context, issueID, jobname string, policy ConflictPolicy) error
	NotifyOverwrite(ctx context.Context, issueID, jobname string, snapshot types.Issue) error
	NotifyFailure(ctx context.Context, stage string, err error) error
	NotifyStartupReport(ctx context.Context, dirs *translate.UserDirectories) error
}

// NewEngine wires the two adapters and static config into an Engine.
func NewEngine(issues IssueStore, jobs JobStore, cfg Config, notify Notifier) *Engine {
	if cfg.ReplicableStatus == nil {
		cfg.ReplicableStatus = func(types.Issue) bool { return true }
	}
	if cfg.NewJobPredicate == nil {
		cfg.NewJobPredicate = func(types.Job) bool { return false }
	}
	return &Engine{
		Issues:     issues,
		Jobs:       jobs,
		Cfg:        cfg,
		JobUpdates: make(map[string]int),
		notify:     notify,
	}
}

// PollResult summarizes one completed poll cycle for logging/metrics.
type PollResult struct {
	IssuesChanged   int
	JobsChanged     int
	Propagated0to1  int
	Propagated1to0  int
	ConflictsFound  int
	ChangelistsSeen int
}

// PollDatabases runs one full poll cycle: pairs the issues and jobs
// that changed since the last acknowledged mark, dispatches each pair
// per the conflict-resolution table, mirrors touched changelists, and
// acknowledges both sides' marks. Any failure anywhere unwinds to the
// caller unexecuted past that point; the caller is responsible for
// the outer retry/back-off loop and for reporting the failure.
func (e *Engine) PollDatabases(ctx context.Context) (PollResult, error) {
	var result PollResult

	ctx, span := telemetry.StartPollSpan(ctx, e.Cfg.RID)
	defer span.End()

	if err := e.Issues.PollStart(ctx); err != nil {
		return result, fmt.Errorf("replicator: poll_start: %w", err)
	}
	pollEndErr := func(cause error) (PollResult, error) {
		if endErr := e.Issues.PollEnd(ctx); endErr != nil && cause == nil {
			cause = endErr
		}
		return result, cause
	}

	clear(e.JobUpdates)

	cycleStart := time.Now().UTC()
	mark, err := e.Issues.LastAcknowledgedMark(ctx)
	if err != nil {
		return pollEndErr(fmt.Errorf("replicator: last_acknowledged_mark: %w", err))
	}

	cycleID, err := e.Issues.BeginCycle(ctx, cycleStart)
	if err != nil {
		return pollEndErr(fmt.Errorf("replicator: begin_cycle: %w", err))
	}

	changedIssues, err := e.Issues.ChangedIssuesSince(ctx, mark, cycleStart)
	if err != nil {
		_ = e.Issues.AbandonCycle(ctx, cycleID)
		return pollEndErr(fmt.Errorf("replicator: changed_issues_since: %w", err))
	}
	result.IssuesChanged = len(changedIssues)

	lastCounter, err := e.Jobs.GetCounter(ctx, jobstore.CounterName(e.Cfg.RID))
	if err != nil {
		_ = e.Issues.AbandonCycle(ctx, cycleID)
		return pollEndErr(fmt.Errorf("replicator: get_counter: %w", err))
	}
	changedJobs, touchedChangelists, nextCounter, err := e.Jobs.ChangedJobs(ctx, e.Cfg.RID, lastCounter, e.JobUpdates,
		e.ownsJob, e.Cfg.NewJobPredicate)
	if err != nil {
		_ = e.Issues.AbandonCycle(ctx, cycleID)
		return pollEndErr(fmt.Errorf("replicator: changed_jobs: %w", err))
	}
	result.JobsChanged = len(changedJobs)
	result.ChangelistsSeen = len(touchedChangelists)

	pairs, err := e.buildPairs(ctx, changedIssues, changedJobs)
	if err != nil {
		_ = e.Issues.AbandonCycle(ctx, cycleID)
		return pollEndErr(fmt.Errorf("replicator: build_pairs: %w", err))
	}

	for _, p := range pairs {
		switch p.Class {
		case types.ClassIssueOnly:
			result.Propagated0to1++
		case types.ClassJobOnly:
			result.Propagated1to0++
		case types.ClassBoth:
			result.ConflictsFound++
			telemetry.RecordConflict(ctx)
		}
		if err := e.dispatch(ctx, p); err != nil {
			_ = e.Issues.AbandonCycle(ctx, cycleID)
			return pollEndErr(fmt.Errorf("replicator: dispatch(%s): %w", p.IssueID, err))
		}
	}

	if e.Cfg.FixesEnabled {
		if err := e.mirrorTouchedChangelists(ctx, touchedChangelists); err != nil {
			_ = e.Issues.AbandonCycle(ctx, cycleID)
			return pollEndErr(fmt.Errorf("replicator: %w", err))
		}
		for _, p := range pairs {
			if p.Job == nil || p.Link.IssueID == "" {
				continue
			}
			if err := e.replicateFixesAndFilespecs(ctx, p.Link.IssueID, *p.Job); err != nil {
				if errors.Is(err, jobstore.ErrChangelistRenumbered) {
					if e.notify != nil {
						_ = e.notify.NotifyFailure(ctx, "replicate_fixes", err)
					}
					continue
				}
				_ = e.Issues.AbandonCycle(ctx, cycleID)
				return pollEndErr(fmt.Errorf("replicator: %w", err))
			}
		}
	}

	if err := e.Jobs.SetCounter(ctx, jobstore.CounterName(e.Cfg.RID), nextCounter); err != nil {
		_ = e.Issues.AbandonCycle(ctx, cycleID)
		return pollEndErr(fmt.Errorf("replicator: set_counter: %w", err))
	}
	if err := e.Issues.CompleteCycle(ctx, cycleID, time.Now().UTC()); err != nil {
		return pollEndErr(fmt.Errorf("replicator: complete_cycle: %w", err))
	}

	return pollEndErr(nil)
}

func (e *Engine) ownsJob(job types.Job) bool {
	return job.Get("P4DTI-rid") == e.Cfg.RID
}
