package replicator

import (
	"context"
	"fmt"

	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/jobstore"
	"github.com/replicateio/tbridge/internal/translate"
	"github.com/replicateio/tbridge/internal/types"
)

// dispatch routes one paired change through the conflict-resolution
// table: an issue-only pair propagates 0->1, a job-only pair
// propagates 1->0, and a both-sides pair is resolved per the
// configured policy with the loser's write reverted and a
// notification sent. A pair with no link row yet is paired for the
// first time here, creating the counterpart record.
func (e *Engine) dispatch(ctx context.Context, p Pair) error {
	if !p.IsLink {
		return e.pairNewRecord(ctx, p)
	}

	switch p.Class {
	case types.ClassIssueOnly:
		return e.propagate0to1(ctx, *p.Issue, p.Link.JobName)
	case types.ClassJobOnly:
		return e.propagate1to0(ctx, *p.Job, p.Link.IssueID)
	case types.ClassBoth:
		return e.resolveConflict(ctx, p)
	}
	return fmt.Errorf("unhandled pair class %v", p.Class)
}

// pairNewRecord handles a Pair with no link row: either a brand-new
// issue (propagate it to side 1, creating a job and linking it), or a
// brand-new adopted job (propagate it to side 0, creating an issue and
// linking it).
func (e *Engine) pairNewRecord(ctx context.Context, p Pair) error {
	switch {
	case p.Issue != nil && p.Job == nil:
		jobname, err := e.createJobForIssue(ctx, *p.Issue)
		if err != nil {
			return fmt.Errorf("pair new issue %s: %w", p.IssueID, err)
		}
		return e.Issues.CreateLink(ctx, types.LinkRow{IssueID: p.Issue.IssueID, JobName: jobname})
	case p.Job != nil && p.Issue == nil:
		issue, err := e.createIssueForJob(ctx, *p.Job)
		if err != nil {
			return fmt.Errorf("pair new job %s: %w", p.JobName, err)
		}
		return e.Issues.CreateLink(ctx, types.LinkRow{IssueID: issue.IssueID, JobName: p.Job.Name})
	default:
		return fmt.Errorf("pair new record: pair has neither issue nor job populated")
	}
}

func (e *Engine) fieldCtx() translate.Context {
	return translate.Context{Directories: e.Directories}
}

// createJobForIssue translates an issue's fields into a new job
// record, writing it under the placeholder name "new" and recording
// the job store's assigned real name.
func (e *Engine) createJobForIssue(ctx context.Context, issue types.Issue) (string, error) {
	fields, err := e.translateIssueToJobFields(issue)
	if err != nil {
		return "", err
	}
	fields["Job"] = "new"
	fields["P4DTI-rid"] = e.Cfg.RID
	fields["P4DTI-issue-id"] = issue.IssueID

	job := types.Job{Name: "new", Fields: fields}
	updated, ack, err := e.Jobs.UpdateJob(ctx, job, fields, true)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	if ack == jobstore.AckSaved {
		e.JobUpdates[updated.Name]++
	}
	return updated.Name, nil
}

// createIssueForJob translates a job's fields into a new issue. The
// link row is left to the caller (CreateLink in pairNewRecord); NewIssue
// is given an empty jobname so it doesn't insert its own link row and
// collide with that one on (issue_id, rid, sid).
func (e *Engine) createIssueForJob(ctx context.Context, job types.Job) (types.Issue, error) {
	issue, err := e.translateJobToIssue(job)
	if err != nil {
		return types.Issue{}, err
	}
	return e.Issues.NewIssue(ctx, issue, "")
}

// propagate0to1 pushes an issue's changed fields to its paired job.
func (e *Engine) propagate0to1(ctx context.Context, issue types.Issue, jobname string) error {
	job, err := e.Jobs.GetJob(ctx, jobname)
	if err != nil {
		return fmt.Errorf("propagate0to1(%s): %w", issue.IssueID, err)
	}
	changes, err := e.translateIssueToJobFields(issue)
	if err != nil {
		return fmt.Errorf("propagate0to1(%s): %w", issue.IssueID, err)
	}
	updated, ack, err := e.Jobs.UpdateJob(ctx, job, changes, false)
	if err != nil {
		return fmt.Errorf("propagate0to1(%s): %w", issue.IssueID, err)
	}
	if ack == jobstore.AckSaved {
		e.JobUpdates[updated.Name]++
	}
	return nil
}

// propagate1to0 pushes a job's changed fields to its paired issue. A
// failed write is usually a permission or validation failure following
// a local user edit; it is handled by reverting the job from the
// issue's still-current state and mailing the admin a pre-overwrite
// snapshot. If the revert or that mail also fails, both failures are
// mailed together in one failure notice and the error is returned, so
// the poll cycle is abandoned.
func (e *Engine) propagate1to0(ctx context.Context, job types.Job, issueID string) error {
	issue, err := e.Issues.Issue(ctx, issueID)
	if err != nil {
		return fmt.Errorf("propagate1to0(%s): %w", job.Name, err)
	}
	changes, err := e.diffJobToIssueChanges(issue, job)
	if err != nil {
		return fmt.Errorf("propagate1to0(%s): %w", job.Name, err)
	}
	if len(changes) == 0 {
		return nil
	}

	updateErr := e.Issues.Update(ctx, issueID, e.bookkeepingActor(), changes, nil)
	if updateErr == nil {
		return e.mirrorInvariantSideEffects(ctx, issueID, job.Name)
	}

	revertErr := e.propagate0to1(ctx, issue, job.Name)
	if e.notify != nil {
		if err := e.notify.NotifyOverwrite(ctx, issueID, job.Name, issue); err != nil && revertErr == nil {
			revertErr = err
		}
	}
	if revertErr != nil {
		if e.notify != nil {
			_ = e.notify.NotifyFailure(ctx, "propagate1to0 revert", fmt.Errorf("update: %v; revert: %w", updateErr, revertErr))
		}
		return fmt.Errorf("propagate1to0(%s): update failed (%v) and revert failed: %w", job.Name, updateErr, revertErr)
	}
	return nil
}

// mirrorInvariantSideEffects re-reads an issue just updated from a job
// and pushes back to that same job any field the update-time invariant
// enforcement changed beyond what the job itself requested — most
// notably a resolution synthesized by the transition the job's status
// change triggered. Without this, the job would disagree with the
// issue's invariant-enforced state until its next unrelated edit.
func (e *Engine) mirrorInvariantSideEffects(ctx context.Context, issueID, jobname string) error {
	after, err := e.Issues.Issue(ctx, issueID)
	if err != nil {
		return fmt.Errorf("mirror_invariant_side_effects(%s): re-read: %w", issueID, err)
	}

	wantToJob, err := e.translateIssueToJobFields(after)
	if err != nil {
		return fmt.Errorf("mirror_invariant_side_effects(%s): %w", issueID, err)
	}
	job, err := e.Jobs.GetJob(ctx, jobname)
	if err != nil {
		return fmt.Errorf("mirror_invariant_side_effects(%s): get_job(%s): %w", issueID, jobname, err)
	}
	changes := make(map[string]string)
	for field, want := range wantToJob {
		if job.Get(field) != want {
			changes[field] = want
		}
	}
	if len(changes) == 0 {
		return nil
	}
	updated, ack, err := e.Jobs.UpdateJob(ctx, job, changes, true)
	if err != nil {
		return fmt.Errorf("mirror_invariant_side_effects(%s): update_job: %w", issueID, err)
	}
	if ack == jobstore.AckSaved {
		e.JobUpdates[updated.Name]++
	}
	return nil
}

// resolveConflict applies the configured conflict policy to a pair
// whose issue and job both changed in the same cycle: side 0 wins by
// default (the job is overwritten and the issue write is treated as
// authoritative), side 1 wins inverts this, and no-op leaves both
// sides as they are. Either way a notification records the event.
func (e *Engine) resolveConflict(ctx context.Context, p Pair) error {
	issueID, jobname := p.Link.IssueID, p.Link.JobName

	if e.notify != nil {
		if err := e.notify.NotifyConflict(ctx, issueID, jobname, e.Cfg.ConflictPolicy); err != nil {
			return fmt.Errorf("resolve_conflict(%s): notify: %w", issueID, err)
		}
	}

	switch e.Cfg.ConflictPolicy {
	case PolicySide1Wins:
		changes, err := e.diffJobToIssueChanges(*p.Issue, *p.Job)
		if err != nil {
			return fmt.Errorf("resolve_conflict(%s): %w", issueID, err)
		}
		if len(changes) > 0 {
			if err := e.Issues.Update(ctx, issueID, e.bookkeepingActor(), changes, nil); err != nil {
				return fmt.Errorf("resolve_conflict(%s): overwrite-to-issue: %w", issueID, err)
			}
			if err := e.mirrorInvariantSideEffects(ctx, issueID, jobname); err != nil {
				return fmt.Errorf("resolve_conflict(%s): %w", issueID, err)
			}
		}
	case PolicyNoOp:
		return nil
	default: // PolicySide0Wins
		if err := e.propagate0to1(ctx, *p.Issue, jobname); err != nil {
			return fmt.Errorf("resolve_conflict(%s): %w", issueID, err)
		}
	}

	if e.notify != nil {
		if err := e.notify.NotifyOverwrite(ctx, issueID, jobname, *p.Issue); err != nil {
			return fmt.Errorf("resolve_conflict(%s): notify overwrite: %w", issueID, err)
		}
	}
	return nil
}

func (e *Engine) bookkeepingActor() string {
	if e.Cfg.BookkeepingSide0ID != "" {
		return e.Cfg.BookkeepingSide0ID
	}
	return "replicator"
}

// translateIssueToJobFields runs the configured field map in the
// side-0-to-side-1 direction, producing a job field changeset.
func (e *Engine) translateIssueToJobFields(issue types.Issue) (map[string]string, error) {
	out := make(map[string]string, len(e.Cfg.FieldMap))
	for _, m := range e.Cfg.FieldMap {
		v := issueFieldValue(issue, m.IssueField)
		translated, err := m.Translator.To1(v, e.fieldCtx())
		if err != nil {
			return nil, fmt.Errorf("translate issue field %q: %w", m.IssueField, err)
		}
		out[m.JobField] = translated
	}
	return out, nil
}

// translateJobToIssue runs the configured field map in the
// side-1-to-side-0 direction, producing a fresh Issue.
func (e *Engine) translateJobToIssue(job types.Job) (types.Issue, error) {
	var issue types.Issue
	issue.Extra = make(map[string]string)
	for _, m := range e.Cfg.FieldMap {
		translated, err := m.Translator.To0(job.Get(m.JobField), e.fieldCtx())
		if err != nil {
			return types.Issue{}, fmt.Errorf("translate job field %q: %w", m.JobField, err)
		}
		setIssueFieldValue(&issue, m.IssueField, translated)
	}
	return issue, nil
}

// diffJobToIssueChanges compares a job's current fields against the
// issue's current values through the field map, producing only the
// Change entries whose translated value actually differs.
func (e *Engine) diffJobToIssueChanges(issue types.Issue, job types.Job) ([]issuestore.Change, error) {
	var changes []issuestore.Change
	for _, m := range e.Cfg.FieldMap {
		translated, err := m.Translator.To0(job.Get(m.JobField), e.fieldCtx())
		if err != nil {
			return nil, fmt.Errorf("translate job field %q: %w", m.JobField, err)
		}
		current := issueFieldValue(issue, m.IssueField)
		if translated == current {
			continue
		}
		changes = append(changes, issuestore.Change{Field: m.IssueField, OldValue: current, NewValue: translated})
	}
	return changes, nil
}

func issueFieldValue(issue types.Issue, field string) string {
	switch field {
	case "Title":
		return issue.Title
	case "Description":
		return issue.Description
	case "Status":
		return string(issue.Status)
	case "Assignee":
		return issue.Assignee
	case "Reporter":
		return issue.Reporter
	case "Component":
		return issue.Component
	case "Version":
		return issue.Version
	case "Product":
		return issue.Product
	case "Priority":
		return fmt.Sprintf("%d", issue.Priority)
	default:
		return issue.Extra[field]
	}
}

func setIssueFieldValue(issue *types.Issue, field, value string) {
	switch field {
	case "Title":
		issue.Title = value
	case "Description":
		issue.Description = value
	case "Status":
		issue.Status = types.Status(value)
	case "Assignee":
		issue.Assignee = value
	case "Reporter":
		issue.Reporter = value
	case "Component":
		issue.Component = value
	case "Version":
		issue.Version = value
	case "Product":
		issue.Product = value
	case "Priority":
		var p int
		fmt.Sscanf(value, "%d", &p)
		issue.Priority = p
	default:
		issue.Extra[field] = value
	}
}
