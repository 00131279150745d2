package issuestore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/replicateio/tbridge/internal/types"
)

// FixesForIssue returns the fix-mirror rows associated with an issue,
// keyed implicitly by change number for the diffing pass the core
// performs during change replication.
func (s *Store) FixesForIssue(ctx context.Context, issueID string) ([]types.Fix, error) {
	rows, err := s.queryContext(ctx, `
		SELECT change_num, user, client, status, date FROM fixes_mirror
		WHERE issue_id = ? AND rid = ? AND sid = ?
	`, issueID, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return nil, fmt.Errorf("issuestore: fixes_for_issue: %w", err)
	}
	defer rows.Close()

	var fixes []types.Fix
	for rows.Next() {
		var f types.Fix
		f.Issue = issueID
		f.RID = s.cfg.RID
		f.SID = s.cfg.SID
		if err := rows.Scan(&f.Change, &f.User, &f.Client, &f.Status, &f.Date); err != nil {
			return nil, fmt.Errorf("issuestore: scan fix: %w", err)
		}
		fixes = append(fixes, f)
	}
	return fixes, rows.Err()
}

// AddFix inserts a fix mirror row.
func (s *Store) AddFix(ctx context.Context, f types.Fix) error {
	_, err := s.execContext(ctx, `
		INSERT INTO fixes_mirror (change_num, issue_id, rid, sid, user, client, status, date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE user = ?, client = ?, status = ?, date = ?
	`, f.Change, f.Issue, s.cfg.RID, s.cfg.SID, f.User, f.Client, f.Status, f.Date,
		f.User, f.Client, f.Status, f.Date)
	if err != nil {
		return fmt.Errorf("issuestore: add_fix: %w", err)
	}
	return nil
}

// DeleteFix removes a fix mirror row; missing rows are not an error,
// mirroring a changelist that was renumbered or never mirrored.
func (s *Store) DeleteFix(ctx context.Context, issueID string, change int) error {
	_, err := s.execContext(ctx,
		"DELETE FROM fixes_mirror WHERE issue_id = ? AND change_num = ? AND rid = ? AND sid = ?",
		issueID, change, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return fmt.Errorf("issuestore: delete_fix: %w", err)
	}
	return nil
}

// UpdateFix updates the status of an existing fix mirror row.
func (s *Store) UpdateFix(ctx context.Context, issueID string, change int, status string) error {
	_, err := s.execContext(ctx,
		"UPDATE fixes_mirror SET status = ? WHERE issue_id = ? AND change_num = ? AND rid = ? AND sid = ?",
		status, issueID, change, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return fmt.Errorf("issuestore: update_fix: %w", err)
	}
	return nil
}

// FilespecsForIssue returns the filespec strings mirrored for an
// issue, for the name-keyed set diff the core performs.
func (s *Store) FilespecsForIssue(ctx context.Context, issueID string) ([]string, error) {
	rows, err := s.queryContext(ctx,
		"SELECT filespec FROM filespecs_mirror WHERE issue_id = ? AND rid = ? AND sid = ?",
		issueID, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return nil, fmt.Errorf("issuestore: filespecs_for_issue: %w", err)
	}
	defer rows.Close()

	var specs []string
	for rows.Next() {
		var spec string
		if err := rows.Scan(&spec); err != nil {
			return nil, fmt.Errorf("issuestore: scan filespec: %w", err)
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}

// AddFilespec inserts a filespec mirror row; a duplicate is a no-op.
func (s *Store) AddFilespec(ctx context.Context, issueID, filespec string) error {
	_, err := s.execContext(ctx,
		"INSERT IGNORE INTO filespecs_mirror (issue_id, rid, sid, filespec) VALUES (?, ?, ?, ?)",
		issueID, s.cfg.RID, s.cfg.SID, filespec)
	if err != nil {
		return fmt.Errorf("issuestore: add_filespec: %w", err)
	}
	return nil
}

// DeleteFilespec removes a filespec mirror row.
func (s *Store) DeleteFilespec(ctx context.Context, issueID, filespec string) error {
	_, err := s.execContext(ctx,
		"DELETE FROM filespecs_mirror WHERE issue_id = ? AND rid = ? AND sid = ? AND filespec = ?",
		issueID, s.cfg.RID, s.cfg.SID, filespec)
	if err != nil {
		return fmt.Errorf("issuestore: delete_filespec: %w", err)
	}
	return nil
}

// Changelist loads a mirrored changelist by number. A changelist
// referenced by a fix but missing from the mirror is not fatal; callers
// treat NotFoundError as "nothing to mirror yet" rather than an error.
func (s *Store) Changelist(ctx context.Context, change int) (types.Changelist, error) {
	var cl types.Changelist
	var user, flags, description, client, status sql.NullString
	var date sql.NullTime

	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&cl.Change, &user, &flags, &description, &client, &date, &status)
	}, `SELECT change_num, user, flags, description, client, date, status
		FROM changelists_mirror WHERE change_num = ? AND rid = ? AND sid = ?`,
		change, s.cfg.RID, s.cfg.SID)
	if err == sql.ErrNoRows {
		return types.Changelist{}, &NotFoundError{Kind: "changelist", ID: fmt.Sprint(change)}
	}
	if err != nil {
		return types.Changelist{}, fmt.Errorf("issuestore: load changelist %d: %w", change, err)
	}
	cl.User = user.String
	cl.Flags = flags.String
	cl.Description = description.String
	cl.Client = client.String
	cl.Status = status.String
	if date.Valid {
		cl.Date = date.Time
	}
	return cl, nil
}

// UpsertChangelist writes the mirror row for a revision-control
// changelist, creating or overwriting it.
func (s *Store) UpsertChangelist(ctx context.Context, cl types.Changelist) error {
	_, err := s.execContext(ctx, `
		INSERT INTO changelists_mirror (change_num, rid, sid, user, flags, description, client, date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE user = ?, flags = ?, description = ?, client = ?, date = ?, status = ?
	`, cl.Change, s.cfg.RID, s.cfg.SID, cl.User, cl.Flags, cl.Description, cl.Client, cl.Date, cl.Status,
		cl.User, cl.Flags, cl.Description, cl.Client, cl.Date, cl.Status)
	if err != nil {
		return fmt.Errorf("issuestore: upsert_changelist: %w", err)
	}
	return nil
}
