package replicator

import (
	"context"
	"time"

	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/translate"
	"github.com/replicateio/tbridge/internal/types"
)

// IssueStore is the side-0 surface the engine drives. *issuestore.Store
// satisfies it; tests substitute an in-memory double the same way
// mockTracker stands in for a real issue tracker.
type IssueStore interface {
	PollStart(ctx context.Context) error
	PollEnd(ctx context.Context) error

	LastAcknowledgedMark(ctx context.Context) (time.Time, error)
	BeginCycle(ctx context.Context, start time.Time) (int64, error)
	CompleteCycle(ctx context.Context, id int64, end time.Time) error
	AbandonCycle(ctx context.Context, id int64) error

	Issue(ctx context.Context, id string) (types.Issue, error)
	AllIssuesSince(ctx context.Context, t time.Time) ([]types.Issue, error)
	ChangedIssuesSince(ctx context.Context, t, nowFence time.Time) ([]types.Issue, error)
	Update(ctx context.Context, issueID, user string, changes []issuestore.Change, checkPerm issuestore.PermissionChecker) error
	NewIssue(ctx context.Context, issue types.Issue, jobname string) (types.Issue, error)

	LinkForIssue(ctx context.Context, issueID string) (types.LinkRow, error)
	LinkForJob(ctx context.Context, jobname string) (types.LinkRow, error)
	CreateLink(ctx context.Context, l types.LinkRow) error
	RenameLink(ctx context.Context, issueID, newJobname string) error

	FixesForIssue(ctx context.Context, issueID string) ([]types.Fix, error)
	AddFix(ctx context.Context, f types.Fix) error
	UpdateFix(ctx context.Context, issueID string, change int, status string) error
	DeleteFix(ctx context.Context, issueID string, change int) error

	FilespecsForIssue(ctx context.Context, issueID string) ([]string, error)
	AddFilespec(ctx context.Context, issueID, filespec string) error
	DeleteFilespec(ctx context.Context, issueID, filespec string) error

	UpsertChangelist(ctx context.Context, cl types.Changelist) error

	Side0Users(ctx context.Context) ([]translate.Side0User, error)
}

// JobStore is the side-1 surface the engine drives. *jobstore.Client
// satisfies it.
type JobStore interface {
	GetCounter(ctx context.Context, name string) (int, error)
	SetCounter(ctx context.Context, name string, value int) error
	EnsureCounter(ctx context.Context, name string) error
	LatestLogEntry(ctx context.Context) (int, error)
	ChangedJobs(ctx context.Context, rid string, lastEntry int, jobUpdates map[string]int, owns func(job types.Job) bool, isNew jobstore.NewJobPredicate) ([]types.Job, []types.Changelist, int, error)

	GetJob(ctx context.Context, name string) (types.Job, error)
	ListJobNames(ctx context.Context, after string) ([]string, error)
	UpdateJob(ctx context.Context, job types.Job, changes map[string]string, force bool) (types.Job, jobstore.Ack, error)

	GetJobSpec(ctx context.Context) (types.JobSpec, error)
	InstallJobSpec(ctx context.Context, spec types.JobSpec) error

	FixesForJob(ctx context.Context, jobname string) ([]types.Fix, error)

	Side1Users(ctx context.Context) ([]translate.Side1User, error)
}

var (
	_ IssueStore = (*issuestore.Store)(nil)
	_ JobStore   = (*jobstore.Client)(nil)
)
