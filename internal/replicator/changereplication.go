package replicator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/types"
)

// replicateFixesAndFilespecs diffs a job's P4DTI-filespecs value and its
// own fix list against the mirror tables, applying only the
// add/update/delete operations needed to converge. The job side has no
// native "fix" or "filespec" record of its own to mirror back;
// replication here is one-directional, side 1 into side 0, which is why
// this runs after dispatch rather than through the field map.
func (e *Engine) replicateFixesAndFilespecs(ctx context.Context, issueID string, job types.Job) error {
	if err := e.replicateFilespecs(ctx, issueID, job.Get("P4DTI-filespecs")); err != nil {
		return fmt.Errorf("replicate_filespecs(%s): %w", issueID, err)
	}

	wanted, err := e.jobFixStatus(ctx, job.Name)
	if errors.Is(err, jobstore.ErrChangelistRenumbered) {
		wanted, err = e.jobFixStatus(ctx, job.Name)
	}
	if err != nil {
		return fmt.Errorf("replicate_fixes(%s): %w", issueID, err)
	}

	if err := e.replicateFixes(ctx, issueID, wanted); err != nil {
		return fmt.Errorf("replicate_fixes(%s): %w", issueID, err)
	}
	return nil
}

// jobFixStatus lists a job's own fix associations and maps each to its
// mirrored status, keyed by change number. This is the job's fix list,
// not the set of changelists touched anywhere this cycle: a job can
// gain or keep a fix to a changelist no one else touched this poll, and
// must not be credited with every changelist another job happened to
// touch.
func (e *Engine) jobFixStatus(ctx context.Context, jobname string) (map[int]types.FixStatus, error) {
	fixes, err := e.Jobs.FixesForJob(ctx, jobname)
	if err != nil {
		return nil, err
	}
	out := make(map[int]types.FixStatus, len(fixes))
	for _, fx := range fixes {
		out[fx.Change] = fx.Status
	}
	return out, nil
}

// splitNonEmptyLines splits the P4DTI-filespecs text value (one
// filespec per line) into its non-blank entries.
func splitNonEmptyLines(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (e *Engine) replicateFilespecs(ctx context.Context, issueID, raw string) error {
	want := make(map[string]bool)
	for _, line := range splitNonEmptyLines(raw) {
		want[line] = true
	}

	have, err := e.Issues.FilespecsForIssue(ctx, issueID)
	if err != nil {
		return err
	}
	haveSet := make(map[string]bool, len(have))
	for _, f := range have {
		haveSet[f] = true
	}

	for spec := range want {
		if !haveSet[spec] {
			if err := e.Issues.AddFilespec(ctx, issueID, spec); err != nil {
				return err
			}
		}
	}
	for _, spec := range have {
		if !want[spec] {
			if err := e.Issues.DeleteFilespec(ctx, issueID, spec); err != nil {
				return err
			}
		}
	}
	return nil
}

// replicateFixes converges the fixes_mirror rows for an issue against
// the set of changelist numbers and statuses the caller observed this
// cycle. A changelist removed from the set (the fix was deleted on
// side 1) is deleted from the mirror; one with a changed status is
// updated; one not previously known is added.
func (e *Engine) replicateFixes(ctx context.Context, issueID string, wanted map[int]types.FixStatus) error {
	existing, err := e.Issues.FixesForIssue(ctx, issueID)
	if err != nil {
		return err
	}
	existingByChange := make(map[int]types.Fix, len(existing))
	for _, f := range existing {
		existingByChange[f.Change] = f
	}

	for change, status := range wanted {
		if f, ok := existingByChange[change]; ok {
			if f.Status != status {
				if err := e.Issues.UpdateFix(ctx, issueID, change, string(status)); err != nil {
					return err
				}
			}
			continue
		}
		if err := e.Issues.AddFix(ctx, types.Fix{Change: change, Issue: issueID, Status: status}); err != nil {
			return err
		}
	}
	for change := range existingByChange {
		if _, ok := wanted[change]; !ok {
			if err := e.Issues.DeleteFix(ctx, issueID, change); err != nil {
				return err
			}
		}
	}
	return nil
}

// mirrorTouchedChangelists upserts the changelist rows observed this
// cycle; per-issue fix association is driven separately, since a
// changelist is linked to an issue through the job it fixes, not
// through the changelist record itself.
func (e *Engine) mirrorTouchedChangelists(ctx context.Context, changelists []types.Changelist) error {
	for _, cl := range changelists {
		if err := e.Issues.UpsertChangelist(ctx, cl); err != nil {
			return fmt.Errorf("mirror_touched_changelists(%d): %w", cl.Change, err)
		}
	}
	return nil
}
