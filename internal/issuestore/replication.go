package issuestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/replicateio/tbridge/internal/types"
)

// LastAcknowledgedMark returns the start timestamp of the newest
// completed replication record, the fence the next poll cycle's
// changed-since queries use as their lower bound. The replications
// table is never empty after schema initialization, so this only
// returns an error on a genuine query failure.
func (s *Store) LastAcknowledgedMark(ctx context.Context) (time.Time, error) {
	var start time.Time
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&start)
	}, `SELECT start FROM replications WHERE rid = ? AND sid = ? AND completed = TRUE
		ORDER BY start DESC LIMIT 1`, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return time.Time{}, fmt.Errorf("issuestore: last_acknowledged_mark: %w", err)
	}
	return start, nil
}

// BeginCycle inserts an uncompleted replication record marking the
// start of a new poll cycle, enforcing that at most one such row
// exists per (rid, sid) at a time.
func (s *Store) BeginCycle(ctx context.Context, start time.Time) (int64, error) {
	var openCount int
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&openCount)
	}, "SELECT COUNT(*) FROM replications WHERE rid = ? AND sid = ? AND completed = FALSE",
		s.cfg.RID, s.cfg.SID)
	if err != nil {
		return 0, fmt.Errorf("issuestore: begin_cycle: check open record: %w", err)
	}
	if openCount > 0 {
		return 0, fmt.Errorf("issuestore: begin_cycle: a replication record is already open for rid=%s sid=%s", s.cfg.RID, s.cfg.SID)
	}

	result, err := s.execContext(ctx,
		"INSERT INTO replications (rid, sid, start, end, completed) VALUES (?, ?, ?, ?, FALSE)",
		s.cfg.RID, s.cfg.SID, start, start)
	if err != nil {
		return 0, fmt.Errorf("issuestore: begin_cycle: insert: %w", err)
	}
	return result.LastInsertId()
}

// CompleteCycle marks the replication record acquired by BeginCycle as
// completed, setting its end timestamp. Both sides' marks must be
// acknowledged before a cycle is considered complete; callers complete
// this record only after the job store's counter has also advanced.
func (s *Store) CompleteCycle(ctx context.Context, id int64, end time.Time) error {
	_, err := s.execContext(ctx,
		"UPDATE replications SET end = ?, completed = TRUE WHERE id = ? AND rid = ? AND sid = ?",
		end, id, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return fmt.Errorf("issuestore: complete_cycle: %w", err)
	}
	return nil
}

// AbandonCycle deletes an uncompleted replication record after a poll
// failure, so the next poll cycle's BeginCycle is not blocked by a
// stale open row. The last acknowledged mark is unaffected since it
// only ever reads completed rows.
func (s *Store) AbandonCycle(ctx context.Context, id int64) error {
	_, err := s.execContext(ctx,
		"DELETE FROM replications WHERE id = ? AND rid = ? AND sid = ? AND completed = FALSE",
		id, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return fmt.Errorf("issuestore: abandon_cycle: %w", err)
	}
	return nil
}

// ConfigValue reads one admin-configured setting.
func (s *Store) ConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&value)
	}, "SELECT config_value FROM config WHERE rid = ? AND sid = ? AND config_key = ?",
		s.cfg.RID, s.cfg.SID, key)
	if err == sql.ErrNoRows {
		return "", &NotFoundError{Kind: "config", ID: key}
	}
	if err != nil {
		return "", fmt.Errorf("issuestore: config_value(%s): %w", key, err)
	}
	return value, nil
}

// SetConfigValue writes or overwrites one admin-configured setting.
func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.execContext(ctx,
		"INSERT INTO config (rid, sid, config_key, config_value) VALUES (?, ?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE config_value = ?",
		s.cfg.RID, s.cfg.SID, key, value, value)
	if err != nil {
		return fmt.Errorf("issuestore: set_config_value(%s): %w", key, err)
	}
	return nil
}

// LinkForIssue returns the link row for an issue, if the issue has
// been paired with a job.
func (s *Store) LinkForIssue(ctx context.Context, issueID string) (types.LinkRow, error) {
	var l types.LinkRow
	var migrated sql.NullTime
	l.IssueID = issueID
	l.RID = s.cfg.RID
	l.SID = s.cfg.SID

	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&l.JobName, &migrated)
	}, "SELECT jobname, migrated FROM links WHERE issue_id = ? AND rid = ? AND sid = ?",
		issueID, s.cfg.RID, s.cfg.SID)
	if err == sql.ErrNoRows {
		return types.LinkRow{}, &NotFoundError{Kind: "link", ID: issueID}
	}
	if err != nil {
		return types.LinkRow{}, fmt.Errorf("issuestore: link_for_issue(%s): %w", issueID, err)
	}
	if migrated.Valid {
		l.Migrated = migrated.Time
	}
	return l, nil
}

// LinkForJob returns the link row whose jobname matches, the reverse
// direction of LinkForIssue used when pairing a changed job with its
// issue.
func (s *Store) LinkForJob(ctx context.Context, jobname string) (types.LinkRow, error) {
	var l types.LinkRow
	var migrated sql.NullTime
	l.JobName = jobname
	l.RID = s.cfg.RID
	l.SID = s.cfg.SID

	err := s.queryRowContext(ctx, func(row *sql.Row) error {
		return row.Scan(&l.IssueID, &migrated)
	}, "SELECT issue_id, migrated FROM links WHERE jobname = ? AND rid = ? AND sid = ?",
		jobname, s.cfg.RID, s.cfg.SID)
	if err == sql.ErrNoRows {
		return types.LinkRow{}, &NotFoundError{Kind: "link", ID: jobname}
	}
	if err != nil {
		return types.LinkRow{}, fmt.Errorf("issuestore: link_for_job(%s): %w", jobname, err)
	}
	if migrated.Valid {
		l.Migrated = migrated.Time
	}
	return l, nil
}

// CreateLink inserts a new link row, born either by ordinary
// replication (migrated is the zero time) or by migration import
// (migrated set to the import timestamp).
func (s *Store) CreateLink(ctx context.Context, l types.LinkRow) error {
	var migrated any
	if !l.Migrated.IsZero() {
		migrated = l.Migrated
	}
	_, err := s.execContext(ctx,
		"INSERT INTO links (issue_id, rid, sid, jobname, migrated) VALUES (?, ?, ?, ?, ?)",
		l.IssueID, s.cfg.RID, s.cfg.SID, l.JobName, migrated)
	if err != nil {
		return fmt.Errorf("issuestore: create_link: %w", err)
	}
	return nil
}

// RenameLink updates a link row's jobname, used when a job was first
// written under the placeholder name "new" and the job store assigned
// the real name on save.
func (s *Store) RenameLink(ctx context.Context, issueID, newJobname string) error {
	_, err := s.execContext(ctx,
		"UPDATE links SET jobname = ? WHERE issue_id = ? AND rid = ? AND sid = ?",
		newJobname, issueID, s.cfg.RID, s.cfg.SID)
	if err != nil {
		return fmt.Errorf("issuestore: rename_link: %w", err)
	}
	return nil
}
