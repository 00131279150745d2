package replicator

import (
	"context"
	"fmt"
	"time"

	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/types"
)

// Discrepancy is one finding from a consistency audit.
type Discrepancy struct {
	Kind    string // unlinked-issue, link-to-missing-job, asymmetric-link, field-divergence, fix-divergence, filespec-divergence, orphan-job
	IssueID string
	JobName string
	Detail  string
}

// AuditResult is the read-only audit's report.
type AuditResult struct {
	Discrepancies []Discrepancy
}

// Audit re-translates every linked pair without writing anything and
// reports every way the two sides have drifted apart: issues that
// should be replicated but carry no link, links pointing at jobs that
// no longer exist, links asymmetric between the two sides' own
// records of each other, non-empty would-be changesets in either
// direction, and fix/filespec set differences. It never mutates
// either side.
func (e *Engine) Audit(ctx context.Context) (AuditResult, error) {
	return e.AuditSince(ctx, time.Time{})
}

// AuditSince runs the same audit over every issue this replicator
// owns, whatever its timestamps, plus the unowned issues created or
// touched at or after since, for the CLI's --since flag: a large
// deployment can check_jobs/check against a recent slice instead of
// walking every issue ever replicated.
func (e *Engine) AuditSince(ctx context.Context, since time.Time) (AuditResult, error) {
	var result AuditResult
	add := func(d Discrepancy) { result.Discrepancies = append(result.Discrepancies, d) }

	issues, err := e.Issues.AllIssuesSince(ctx, since)
	if err != nil {
		return result, fmt.Errorf("audit: all_issues_since: %w", err)
	}

	for _, issue := range issues {
		if !e.Cfg.ReplicableStatus(issue) {
			continue
		}

		link, err := e.Issues.LinkForIssue(ctx, issue.IssueID)
		if issuestore.IsNotFound(err) {
			add(Discrepancy{Kind: "unlinked-issue", IssueID: issue.IssueID, Detail: "replicable issue has no link row"})
			continue
		}
		if err != nil {
			return result, fmt.Errorf("audit(%s): link_for_issue: %w", issue.IssueID, err)
		}

		job, err := e.Jobs.GetJob(ctx, link.JobName)
		if jobstore.IsNotFound(err) {
			add(Discrepancy{Kind: "link-to-missing-job", IssueID: issue.IssueID, JobName: link.JobName})
			continue
		}
		if err != nil {
			return result, fmt.Errorf("audit(%s): get_job(%s): %w", issue.IssueID, link.JobName, err)
		}

		if reverse, err := e.Issues.LinkForJob(ctx, link.JobName); err == nil && reverse.IssueID != issue.IssueID {
			add(Discrepancy{Kind: "asymmetric-link", IssueID: issue.IssueID, JobName: link.JobName,
				Detail: fmt.Sprintf("job's link points back to issue %q", reverse.IssueID)})
		}

		changesTo0, err := e.diffJobToIssueChanges(issue, job)
		if err != nil {
			return result, fmt.Errorf("audit(%s): diff job->issue: %w", issue.IssueID, err)
		}
		if len(changesTo0) > 0 {
			add(Discrepancy{Kind: "field-divergence", IssueID: issue.IssueID, JobName: link.JobName,
				Detail: fmt.Sprintf("%d field(s) would change on the issue", len(changesTo0))})
		}

		changesTo1, err := e.translateIssueToJobFields(issue)
		if err != nil {
			return result, fmt.Errorf("audit(%s): diff issue->job: %w", issue.IssueID, err)
		}
		for field, want := range changesTo1 {
			if job.Get(field) != want {
				add(Discrepancy{Kind: "field-divergence", IssueID: issue.IssueID, JobName: link.JobName,
					Detail: fmt.Sprintf("job field %q would change", field)})
				break
			}
		}

		if e.Cfg.FixesEnabled {
			if d := e.auditFixes(ctx, issue.IssueID, link.JobName); d != "" {
				add(Discrepancy{Kind: "fix-divergence", IssueID: issue.IssueID, JobName: link.JobName, Detail: d})
			}
			if d := e.auditFilespecs(ctx, issue.IssueID, job); d != "" {
				add(Discrepancy{Kind: "filespec-divergence", IssueID: issue.IssueID, JobName: link.JobName, Detail: d})
			}
		}
	}

	if err := e.auditOrphanJobs(ctx, add); err != nil {
		return result, fmt.Errorf("audit: %w", err)
	}

	return result, nil
}

// auditOrphanJobs finds jobs this instance owns that no issue links
// back to: either the link row was deleted out from under the job, or
// the job was created by some other means and stamped with this rid's
// bookkeeping fields without ever being paired. Enumerating jobs is
// the only side of this check the per-issue pass above cannot cover,
// since it only ever walks outward from an issue.
func (e *Engine) auditOrphanJobs(ctx context.Context, add func(Discrepancy)) error {
	names, err := e.Jobs.ListJobNames(ctx, "")
	if err != nil {
		return fmt.Errorf("list_job_names: %w", err)
	}
	for _, name := range names {
		job, err := e.Jobs.GetJob(ctx, name)
		if err != nil {
			if jobstore.IsNotFound(err) {
				continue
			}
			return fmt.Errorf("get_job(%s): %w", name, err)
		}
		if !e.ownsJob(job) {
			continue
		}
		link, err := e.Issues.LinkForJob(ctx, name)
		if issuestore.IsNotFound(err) {
			add(Discrepancy{Kind: "orphan-job", JobName: name, Detail: "job carries this instance's bookkeeping fields but has no link row"})
			continue
		}
		if err != nil {
			return fmt.Errorf("link_for_job(%s): %w", name, err)
		}
		if _, err := e.Issues.Issue(ctx, link.IssueID); issuestore.IsNotFound(err) {
			add(Discrepancy{Kind: "orphan-job", JobName: name, IssueID: link.IssueID, Detail: "link points at an issue that no longer exists"})
		} else if err != nil {
			return fmt.Errorf("issue(%s): %w", link.IssueID, err)
		}
	}
	return nil
}

// auditFixes diffs the job's own fix list against the mirrored
// fixes_mirror rows for its linked issue, the same set replicateFixes
// converges during normal replication, and reports any change number or
// status this pass finds unconverged.
func (e *Engine) auditFixes(ctx context.Context, issueID, jobname string) string {
	wanted, err := e.jobFixStatus(ctx, jobname)
	if err != nil {
		return fmt.Sprintf("fixes_for_job failed: %v", err)
	}
	have, err := e.Issues.FixesForIssue(ctx, issueID)
	if err != nil {
		return fmt.Sprintf("fixes_for_issue failed: %v", err)
	}
	haveByChange := make(map[int]types.Fix, len(have))
	for _, f := range have {
		haveByChange[f.Change] = f
	}

	var missing, extra, mismatched int
	for change, status := range wanted {
		f, ok := haveByChange[change]
		switch {
		case !ok:
			missing++
		case f.Status != status:
			mismatched++
		}
	}
	for change := range haveByChange {
		if _, ok := wanted[change]; !ok {
			extra++
		}
	}
	if missing == 0 && extra == 0 && mismatched == 0 {
		return ""
	}
	return fmt.Sprintf("%d missing, %d extra, %d status-mismatched fix(es)", missing, extra, mismatched)
}

func (e *Engine) auditFilespecs(ctx context.Context, issueID string, job types.Job) string {
	have, err := e.Issues.FilespecsForIssue(ctx, issueID)
	if err != nil {
		return fmt.Sprintf("filespecs_for_issue failed: %v", err)
	}
	haveSet := make(map[string]bool, len(have))
	for _, f := range have {
		haveSet[f] = true
	}
	missing := 0
	for _, line := range splitNonEmptyLines(job.Get("P4DTI-filespecs")) {
		if !haveSet[line] {
			missing++
		}
	}
	if missing > 0 {
		return fmt.Sprintf("%d filespec(s) on the job not yet mirrored", missing)
	}
	return ""
}
