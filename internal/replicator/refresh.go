package replicator

import (
	"context"
	"fmt"
	"time"

	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/types"
)

// RefreshResult tallies one refresh pass.
type RefreshResult struct {
	Written int
	Skipped int
}

// Refresh force-writes every replicable issue to its corresponding
// job, creating the link and job if one does not yet exist. No job is
// ever deleted. The side-1 event-log counter is reset to the current
// head at the end so the next ordinary poll starts from a clean
// slate rather than replaying every write this pass just made.
func (e *Engine) Refresh(ctx context.Context) (RefreshResult, error) {
	var result RefreshResult

	issues, err := e.Issues.AllIssuesSince(ctx, time.Time{})
	if err != nil {
		return result, fmt.Errorf("refresh: all_issues_since: %w", err)
	}

	for _, issue := range issues {
		if !e.Cfg.ReplicableStatus(issue) {
			result.Skipped++
			continue
		}

		link, err := e.Issues.LinkForIssue(ctx, issue.IssueID)
		switch {
		case err == nil:
			if err := e.forceWriteJob(ctx, issue, link.JobName); err != nil {
				return result, fmt.Errorf("refresh(%s): %w", issue.IssueID, err)
			}
		case issuestore.IsNotFound(err):
			jobname, err := e.createJobForIssue(ctx, issue)
			if err != nil {
				return result, fmt.Errorf("refresh(%s): create job: %w", issue.IssueID, err)
			}
			if err := e.Issues.CreateLink(ctx, types.LinkRow{IssueID: issue.IssueID, JobName: jobname}); err != nil {
				return result, fmt.Errorf("refresh(%s): create link: %w", issue.IssueID, err)
			}
		default:
			return result, fmt.Errorf("refresh(%s): link_for_issue: %w", issue.IssueID, err)
		}
		result.Written++
	}

	head, err := e.Jobs.LatestLogEntry(ctx)
	if err != nil {
		return result, fmt.Errorf("refresh: %w", err)
	}
	if err := e.Jobs.SetCounter(ctx, jobstore.CounterName(e.Cfg.RID), head); err != nil {
		return result, fmt.Errorf("refresh: reset counter: %w", err)
	}

	return result, nil
}

func (e *Engine) forceWriteJob(ctx context.Context, issue types.Issue, jobname string) error {
	job, err := e.Jobs.GetJob(ctx, jobname)
	if err != nil {
		return fmt.Errorf("get_job(%s): %w", jobname, err)
	}
	changes, err := e.translateIssueToJobFields(issue)
	if err != nil {
		return err
	}
	updated, ack, err := e.Jobs.UpdateJob(ctx, job, changes, true)
	if err != nil {
		return fmt.Errorf("update_job(%s): %w", jobname, err)
	}
	if ack == jobstore.AckSaved {
		e.JobUpdates[updated.Name]++
	}
	return nil
}
