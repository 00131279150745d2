package replicator

import (
	"context"
	"fmt"

	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/types"
)

// MigrationResult tallies one migration pass for the CLI/admin report.
type MigrationResult struct {
	Imported int
	Skipped  int
}

// MigrateJobs runs the one-shot job->issue import: every eligible job
// not already linked is translated into a new, migration-flagged
// issue, with its fixes and filespecs replicated but its field
// contents never written back to the job. The jobspec is deliberately
// left untouched; a subsequent ordinary poll cycle extends it once
// every job has been imported and therefore every issue exists to
// compare against.
//
// startAfter, if non-empty, resumes a prior partial run: jobs are
// listed starting immediately after that name, matching the CLI's
// --start flag.
func (e *Engine) MigrateJobs(ctx context.Context, startAfter string) (MigrationResult, error) {
	var result MigrationResult

	names, err := e.Jobs.ListJobNames(ctx, startAfter)
	if err != nil {
		return result, fmt.Errorf("migrate_jobs: %w", err)
	}

	for _, name := range names {
		job, err := e.Jobs.GetJob(ctx, name)
		if err != nil {
			if jobstore.IsNotFound(err) {
				result.Skipped++
				continue
			}
			return result, fmt.Errorf("migrate_jobs: get_job(%s): %w", name, err)
		}

		if _, err := e.Issues.LinkForJob(ctx, name); err == nil {
			result.Skipped++
			continue
		} else if !issuestore.IsNotFound(err) {
			return result, fmt.Errorf("migrate_jobs: link_for_job(%s): %w", name, err)
		}

		if !e.Cfg.NewJobPredicate(job) {
			result.Skipped++
			continue
		}

		if err := e.migrateOneJob(ctx, job); err != nil {
			return result, fmt.Errorf("migrate_jobs(%s): %w", name, err)
		}
		result.Imported++
	}
	return result, nil
}

func (e *Engine) migrateOneJob(ctx context.Context, job types.Job) error {
	issue, err := e.translateJobToIssue(job)
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}

	created, err := e.Issues.NewIssue(ctx, issue, "")
	if err != nil {
		return fmt.Errorf("new_issue: %w", err)
	}

	if err := e.Issues.CreateLink(ctx, types.LinkRow{
		IssueID:  created.IssueID,
		JobName:  job.Name,
		Migrated: created.CreationTS,
	}); err != nil {
		return fmt.Errorf("create migrated link: %w", err)
	}

	if e.Cfg.FixesEnabled {
		if err := e.replicateFixesAndFilespecs(ctx, created.IssueID, job); err != nil {
			return fmt.Errorf("replicate fixes/filespecs: %w", err)
		}
	}
	return nil
}
