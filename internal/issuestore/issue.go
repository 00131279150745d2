package issuestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/replicateio/tbridge/internal/types"
)

// Issue loads an issue row, its extra fields, and its link row (if
// any). Returns *NotFoundError if the issue does not exist.
func (s *Store) Issue(ctx context.Context, id string) (types.Issue, error) {
	var issue types.Issue
	var assignee, reporter, component, version, product sql.NullString
	var ownerRID, ownerSID sql.NullString

	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&issue.IssueID, &issue.Title, &issue.Description, &issue.Status,
			&assignee, &reporter, &component, &version, &product, &issue.Priority,
			&ownerRID, &ownerSID, &issue.CreationTS, &issue.DeltaTS)
	}, `SELECT issue_id, title, description, status, assignee, reporter, component, version,
		product, priority, owner_rid, owner_sid, creation_ts, delta_ts FROM issues WHERE issue_id = ?`, id)
	if err == sql.ErrNoRows {
		return types.Issue{}, &NotFoundError{Kind: "issue", ID: id}
	}
	if err != nil {
		return types.Issue{}, fmt.Errorf("issuestore: load issue %s: %w", id, err)
	}
	issue.Assignee = assignee.String
	issue.Reporter = reporter.String
	issue.Component = component.String
	issue.Version = version.String
	issue.Product = product.String
	issue.OwnerRID = ownerRID.String
	issue.OwnerSID = ownerSID.String

	extra, err := s.loadExtraFields(ctx, id)
	if err != nil {
		return types.Issue{}, err
	}
	issue.Extra = extra

	return issue, nil
}

func (s *Store) loadExtraFields(ctx context.Context, issueID string) (map[string]string, error) {
	rows, err := s.queryContext(ctx, "SELECT name, value FROM issue_extra_fields WHERE issue_id = ?", issueID)
	if err != nil {
		return nil, fmt.Errorf("issuestore: load extra fields for %s: %w", issueID, err)
	}
	defer rows.Close()

	extra := make(map[string]string)
	for rows.Next() {
		var name string
		var value sql.NullString
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("issuestore: scan extra field for %s: %w", issueID, err)
		}
		extra[name] = value.String
	}
	return extra, rows.Err()
}

// AllIssuesSince returns issues owned by self, plus any not yet owned
// by anyone with creation_ts or delta_ts >= t.
func (s *Store) AllIssuesSince(ctx context.Context, t time.Time) ([]types.Issue, error) {
	rows, err := s.queryContext(ctx, `
		SELECT issue_id FROM issues
		WHERE (owner_rid = ? AND owner_sid = ?)
		   OR ((owner_rid IS NULL OR owner_rid = '') AND (creation_ts >= ? OR delta_ts >= ?))
	`, s.cfg.RID, s.cfg.SID, t, t)
	if err != nil {
		return nil, fmt.Errorf("issuestore: all_issues_since: %w", err)
	}
	return s.loadIssuesFromIDRows(ctx, rows)
}

func (s *Store) loadIssuesFromIDRows(ctx context.Context, rows *sql.Rows) ([]types.Issue, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("issuestore: scan issue id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	issues := make([]types.Issue, 0, len(ids))
	for _, id := range ids {
		issue, err := s.Issue(ctx, id)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// ChangedIssuesSince implements the three-way disjoint
// changed_issues_since algorithm: new issues, issues touched but not
// field-changed, and issues field-changed by somebody other than the
// replicator. nowFence is the start timestamp of the current
// replication cycle; changes whose timestamp equals nowFence are
// deferred to the next cycle so the same change is never replicated
// twice by two consecutive cycles.
func (s *Store) ChangedIssuesSince(ctx context.Context, t, nowFence time.Time) ([]types.Issue, error) {
	seen := make(map[string]bool)
	var ids []string

	add := func(newIDs []string) {
		for _, id := range newIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	newIDs, err := s.newIssuesSince(ctx, t, nowFence)
	if err != nil {
		return nil, err
	}
	add(newIDs)

	touchedIDs, err := s.touchedNotFieldChangedSince(ctx, t, nowFence)
	if err != nil {
		return nil, err
	}
	add(touchedIDs)

	fieldChangedIDs, err := s.fieldChangedBySomeoneElseSince(ctx, t, nowFence)
	if err != nil {
		return nil, err
	}
	add(fieldChangedIDs)

	issues := make([]types.Issue, 0, len(ids))
	for _, id := range ids {
		issue, err := s.Issue(ctx, id)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// newIssuesSince: creation_ts in [t, nowFence) AND (unowned OR
// (owned-by-self AND not migrated-by-self)).
func (s *Store) newIssuesSince(ctx context.Context, t, nowFence time.Time) ([]string, error) {
	rows, err := s.queryContext(ctx, `
		SELECT i.issue_id FROM issues i
		LEFT JOIN links l ON l.issue_id = i.issue_id AND l.rid = ? AND l.sid = ?
		WHERE i.creation_ts >= ? AND i.creation_ts < ?
		  AND (
		    i.owner_rid IS NULL OR i.owner_rid = ''
		    OR (i.owner_rid = ? AND i.owner_sid = ? AND (l.migrated IS NULL))
		  )
	`, s.cfg.RID, s.cfg.SID, t, nowFence, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return nil, fmt.Errorf("issuestore: new_issues_since: %w", err)
	}
	return scanIDs(rows)
}

// touchedNotFieldChangedSince: delta_ts in [t, nowFence), creation_ts
// < t, no activity-log row for this issue in [t, nowFence), ownership
// as in newIssuesSince, and the link row's migrated timestamp is null
// or earlier than t.
func (s *Store) touchedNotFieldChangedSince(ctx context.Context, t, nowFence time.Time) ([]string, error) {
	rows, err := s.queryContext(ctx, `
		SELECT i.issue_id FROM issues i
		LEFT JOIN links l ON l.issue_id = i.issue_id AND l.rid = ? AND l.sid = ?
		WHERE i.delta_ts >= ? AND i.delta_ts < ? AND i.creation_ts < ?
		  AND (i.owner_rid IS NULL OR i.owner_rid = '' OR (i.owner_rid = ? AND i.owner_sid = ?))
		  AND (l.migrated IS NULL OR l.migrated < ?)
		  AND NOT EXISTS (
		    SELECT 1 FROM activity_log a
		    WHERE a.issue_id = i.issue_id AND a.when_ts >= ? AND a.when_ts < ?
		  )
	`, s.cfg.RID, s.cfg.SID, t, nowFence, t, s.cfg.RID, s.cfg.SID, t, t, nowFence)
	if err != nil {
		return nil, fmt.Errorf("issuestore: touched_not_field_changed_since: %w", err)
	}
	return scanIDs(rows)
}

// fieldChangedBySomeoneElseSince: any activity-log row for this issue
// in [t, nowFence) with no matching mirror_activity_log row matched on
// (issue_id, when, who, field, old, new) with rid=self, sid=self.
func (s *Store) fieldChangedBySomeoneElseSince(ctx context.Context, t, nowFence time.Time) ([]string, error) {
	rows, err := s.queryContext(ctx, `
		SELECT DISTINCT a.issue_id FROM activity_log a
		WHERE a.when_ts >= ? AND a.when_ts < ?
		  AND NOT EXISTS (
		    SELECT 1 FROM mirror_activity_log m
		    WHERE m.issue_id = a.issue_id AND m.when_ts = a.when_ts AND m.who = a.who
		      AND m.field = a.field AND m.old_value <=> a.old_value AND m.new_value <=> a.new_value
		      AND m.rid = ? AND m.sid = ?
		  )
	`, t, nowFence, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return nil, fmt.Errorf("issuestore: field_changed_by_someone_else_since: %w", err)
	}
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("issuestore: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Update validates and applies field changes within a single
// transaction, appending to both the native activity log and the
// replicator-owned mirror activity log.
func (s *Store) Update(ctx context.Context, issueID, user string, changes []Change, checkPerm PermissionChecker) error {
	issue, err := s.Issue(ctx, issueID)
	if err != nil {
		return err
	}

	newStatus, resolution, err := applyInvariants(issue, user, changes, checkPerm)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("issuestore: begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for _, c := range changes {
		if err := applyFieldChange(ctx, tx, issueID, c); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO activity_log (issue_id, when_ts, who, field, old_value, new_value) VALUES (?, ?, ?, ?, ?, ?)",
			issueID, now, user, c.Field, c.OldValue, c.NewValue); err != nil {
			return fmt.Errorf("issuestore: append activity log: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO mirror_activity_log (issue_id, rid, sid, when_ts, who, field, old_value, new_value) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			issueID, s.cfg.RID, s.cfg.SID, now, user, c.Field, c.OldValue, c.NewValue); err != nil {
			return fmt.Errorf("issuestore: append mirror activity log: %w", err)
		}
	}

	if newStatus != issue.Status {
		if _, err := tx.ExecContext(ctx, "UPDATE issues SET status = ?, delta_ts = ? WHERE issue_id = ?", newStatus, now, issueID); err != nil {
			return fmt.Errorf("issuestore: update status: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO issue_extra_fields (issue_id, name, value) VALUES (?, 'resolution', ?) ON DUPLICATE KEY UPDATE value = ?",
		issueID, resolution, resolution); err != nil {
		return fmt.Errorf("issuestore: persist resolution: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE issues SET delta_ts = ? WHERE issue_id = ?", now, issueID); err != nil {
		return fmt.Errorf("issuestore: touch delta_ts: %w", err)
	}

	return tx.Commit()
}

func applyFieldChange(ctx context.Context, tx *sql.Tx, issueID string, c Change) error {
	switch c.Field {
	case "Title":
		_, err := tx.ExecContext(ctx, "UPDATE issues SET title = ? WHERE issue_id = ?", c.NewValue, issueID)
		return wrapOrNil(err, "update title")
	case "Description":
		_, err := tx.ExecContext(ctx, "UPDATE issues SET description = ? WHERE issue_id = ?", c.NewValue, issueID)
		return wrapOrNil(err, "update description")
	case "Assignee":
		_, err := tx.ExecContext(ctx, "UPDATE issues SET assignee = ? WHERE issue_id = ?", c.NewValue, issueID)
		return wrapOrNil(err, "update assignee")
	case "Priority":
		_, err := tx.ExecContext(ctx, "UPDATE issues SET priority = ? WHERE issue_id = ?", c.NewValue, issueID)
		return wrapOrNil(err, "update priority")
	case "Status", "resolution":
		return nil // handled by the caller after invariant reconciliation
	default:
		_, err := tx.ExecContext(ctx,
			"INSERT INTO issue_extra_fields (issue_id, name, value) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE value = ?",
			issueID, c.Field, c.NewValue, c.NewValue)
		return wrapOrNil(err, "update extra field "+c.Field)
	}
}

func wrapOrNil(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("issuestore: %s: %w", context, err)
}

// NewIssue creates an issue and links it by jobname if supplied.
// Product, component and version are stored exactly as given; no
// default is filled in for an empty one.
func (s *Store) NewIssue(ctx context.Context, issue types.Issue, jobname string) (types.Issue, error) {
	now := time.Now().UTC()
	issue.CreationTS = now
	issue.DeltaTS = now
	if issue.Status == "" {
		issue.Status = types.StatusNew
	}
	if err := issue.Validate(); err != nil {
		return types.Issue{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Issue{}, fmt.Errorf("issuestore: begin new_issue tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO issues (issue_id, title, description, status, assignee, reporter, component,
			version, product, priority, owner_rid, owner_sid, creation_ts, delta_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, issue.IssueID, issue.Title, issue.Description, issue.Status, issue.Assignee, issue.Reporter,
		issue.Component, issue.Version, issue.Product, issue.Priority, s.cfg.RID, s.cfg.SID, now, now)
	if err != nil {
		return types.Issue{}, fmt.Errorf("issuestore: insert issue: %w", err)
	}

	if jobname != "" {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO links (issue_id, rid, sid, jobname) VALUES (?, ?, ?, ?)",
			issue.IssueID, s.cfg.RID, s.cfg.SID, jobname)
		if err != nil {
			return types.Issue{}, fmt.Errorf("issuestore: insert link: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Issue{}, fmt.Errorf("issuestore: commit new_issue: %w", err)
	}
	issue.OwnerRID = s.cfg.RID
	issue.OwnerSID = s.cfg.SID
	return issue, nil
}
