package issuestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// upgradeStep is one entry of the static old -> (new, statements) map
// driving the schema-extension upgrade. Statements are applied in
// order and must be idempotent: a crash mid-upgrade followed by a
// restart re-applies the same step against a partially-migrated
// schema.
type upgradeStep struct {
	to         int
	statements []string
}

// upgradeMap is keyed by the stored version being upgraded FROM. A
// version with no entry here, above currentSchemaVersion, is fatal
// per the schema/version error taxonomy. Version 0 is the "prehistoric"
// variant: a database whose config table holds no schema_version row
// for this (rid, sid) and whose tables detectVersion matches to
// version 0. A database with no config table at all is bootstrapped
// instead and never enters this map.
var upgradeMap = map[int]upgradeStep{
	0: {
		to: currentSchemaVersion,
		statements: []string{
			"ALTER TABLE links ADD COLUMN migrated DATETIME NULL",
		},
	},
}

// columnExists checks whether a column exists on a table.
func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ? AND column_name = ?
	`, table, column).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("issuestore: check column %s.%s: %w", table, column, err)
	}
	return count > 0, nil
}

// addColumnIfNotExists adds a column, tolerating a race against
// another replicator process performing the same upgrade.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, colType string) error {
	exists, err := columnExists(ctx, db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, colType))
	if err != nil && !isHarmlessDDLRace(err) {
		return fmt.Errorf("issuestore: add column %s.%s: %w", table, column, err)
	}
	return nil
}

func isHarmlessDDLRace(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}

// tableSet returns the set of table names present in the database,
// for version detection.
func tableSet(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE()
	`)
	if err != nil {
		return nil, fmt.Errorf("issuestore: list tables: %w", err)
	}
	defer rows.Close()

	set := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("issuestore: scan table name: %w", err)
		}
		set[name] = true
	}
	return set, rows.Err()
}

// versionSignature describes the tables a given schema version added
// relative to the prehistoric base, used by detectVersion when the
// config table holds no schema_version row (so the version cannot be
// read directly).
type versionSignature struct {
	version      int
	tablesAdded  []string
	tablesRemoved []string
}

var versionSignatures = []versionSignature{
	{version: 1, tablesAdded: []string{"links", "mirror_activity_log", "changelists_mirror", "fixes_mirror", "filespecs_mirror", "config", "replications"}},
	{version: 0, tablesAdded: nil},
}

// detectVersion deduces the schema-extensions version from the set of
// observed tables when no config row is available: best match is the
// signature minimizing |missing|+|extra| against the observed set,
// ties broken by first occurrence in versionSignatures. A table is
// extra for a signature when it is observed and is either one of its
// tablesRemoved or an extension table some other signature adds.
func detectVersion(observed map[string]bool) int {
	known := make(map[string]bool)
	for _, sig := range versionSignatures {
		for _, t := range sig.tablesAdded {
			known[t] = true
		}
	}
	best := versionSignatures[0].version
	bestScore := -1
	for _, sig := range versionSignatures {
		expected := make(map[string]bool, len(sig.tablesAdded))
		missing := 0
		for _, t := range sig.tablesAdded {
			expected[t] = true
			if !observed[t] {
				missing++
			}
		}
		extra := 0
		for t := range known {
			if observed[t] && !expected[t] {
				extra++
			}
		}
		for _, t := range sig.tablesRemoved {
			if observed[t] && !known[t] {
				extra++
			}
		}
		score := missing + extra
		if bestScore == -1 || score < bestScore {
			bestScore = score
			best = sig.version
		}
	}
	return best
}

// upgradeSchema creates the extension tables if missing (which also
// seeds schema_version at the current value) or, for an existing
// database, reads the stored version and walks upgradeMap until the
// stored version equals currentSchemaVersion.
func (s *Store) upgradeSchema(ctx context.Context) error {
	tables, err := tableSet(ctx, s.db)
	if err != nil {
		return err
	}

	if !tables["config"] {
		return s.bootstrapSchema(ctx)
	}

	var stored int
	err = s.db.QueryRowContext(ctx, "SELECT config_value FROM config WHERE config_key = 'schema_version' AND rid = ? AND sid = ?", s.cfg.RID, s.cfg.SID).Scan(&stored)
	if err == sql.ErrNoRows {
		stored = detectVersion(tables)
	} else if err != nil {
		return fmt.Errorf("issuestore: read schema_version: %w", err)
	}

	for stored != currentSchemaVersion {
		step, ok := upgradeMap[stored]
		if !ok {
			return &SchemaVersionError{Stored: stored, Current: currentSchemaVersion}
		}
		for _, stmt := range step.statements {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil && !isHarmlessDDLRace(err) {
				return fmt.Errorf("issuestore: schema upgrade %d->%d: %w", stored, step.to, err)
			}
		}
		stored = step.to
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO config (rid, sid, config_key, config_value) VALUES (?, ?, 'schema_version', ?) "+
			"ON DUPLICATE KEY UPDATE config_value = ?",
		s.cfg.RID, s.cfg.SID, stored, stored)
	if err != nil {
		return fmt.Errorf("issuestore: persist schema_version: %w", err)
	}
	return nil
}

func (s *Store) bootstrapSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(schema) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("issuestore: create schema: %w\nstatement: %s", err, stmt)
		}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO config (rid, sid, config_key, config_value) VALUES (?, ?, 'schema_version', ?) "+
			"ON DUPLICATE KEY UPDATE config_value = ?",
		s.cfg.RID, s.cfg.SID, currentSchemaVersion, currentSchemaVersion)
	if err != nil {
		return fmt.Errorf("issuestore: seed schema_version: %w", err)
	}
	// The replications table is never empty after init (invariant 5).
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO replications (rid, sid, start, end, completed) VALUES (?, ?, NOW(), NOW(), TRUE)",
		s.cfg.RID, s.cfg.SID)
	if err != nil {
		return fmt.Errorf("issuestore: seed initial replication record: %w", err)
	}
	return nil
}
