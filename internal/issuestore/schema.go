package issuestore

// currentSchemaVersion is the target schema-extensions version. Bump
// this and add an entry to upgradeMap whenever a migration is added.
const currentSchemaVersion = 1

// schema creates the native issue-tracker tables this adapter assumes
// exist (issues, the native activity log) plus the side-0 schema
// extensions the replicator exclusively owns: the link table, the
// replicator-mirror activity log, the changelists/fixes/filespecs
// mirrors, config, and replications. All extension rows carry
// (rid, sid) in their key so multiple replicators may coexist.
const schema = `
CREATE TABLE IF NOT EXISTS issues (
	issue_id VARCHAR(64) PRIMARY KEY,
	title VARCHAR(500) NOT NULL,
	description TEXT,
	status VARCHAR(32) NOT NULL,
	assignee VARCHAR(255),
	reporter VARCHAR(255),
	component VARCHAR(255),
	version VARCHAR(255),
	product VARCHAR(255),
	priority INT NOT NULL DEFAULT 2,
	owner_rid VARCHAR(64),
	owner_sid VARCHAR(64),
	creation_ts DATETIME NOT NULL,
	delta_ts DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id VARCHAR(64) PRIMARY KEY,
	email VARCHAR(320) NOT NULL
);

CREATE TABLE IF NOT EXISTS issue_extra_fields (
	issue_id VARCHAR(64) NOT NULL,
	name VARCHAR(128) NOT NULL,
	value TEXT,
	PRIMARY KEY (issue_id, name)
);

CREATE TABLE IF NOT EXISTS activity_log (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	issue_id VARCHAR(64) NOT NULL,
	when_ts DATETIME NOT NULL,
	who VARCHAR(255) NOT NULL,
	field VARCHAR(128) NOT NULL,
	old_value TEXT,
	new_value TEXT
);

CREATE TABLE IF NOT EXISTS links (
	issue_id VARCHAR(64) NOT NULL,
	rid VARCHAR(64) NOT NULL,
	sid VARCHAR(64) NOT NULL,
	jobname VARCHAR(255) NOT NULL,
	migrated DATETIME NULL,
	PRIMARY KEY (issue_id, rid, sid)
);

CREATE TABLE IF NOT EXISTS mirror_activity_log (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	issue_id VARCHAR(64) NOT NULL,
	rid VARCHAR(64) NOT NULL,
	sid VARCHAR(64) NOT NULL,
	when_ts DATETIME NOT NULL,
	who VARCHAR(255) NOT NULL,
	field VARCHAR(128) NOT NULL,
	old_value TEXT,
	new_value TEXT
);

CREATE TABLE IF NOT EXISTS changelists_mirror (
	change_num INT NOT NULL,
	rid VARCHAR(64) NOT NULL,
	sid VARCHAR(64) NOT NULL,
	user VARCHAR(255),
	flags VARCHAR(64),
	description TEXT,
	client VARCHAR(255),
	date DATETIME,
	status VARCHAR(32),
	PRIMARY KEY (change_num, rid, sid)
);

CREATE TABLE IF NOT EXISTS fixes_mirror (
	change_num INT NOT NULL,
	issue_id VARCHAR(64) NOT NULL,
	rid VARCHAR(64) NOT NULL,
	sid VARCHAR(64) NOT NULL,
	user VARCHAR(255),
	client VARCHAR(255),
	status VARCHAR(32),
	date DATETIME,
	PRIMARY KEY (change_num, issue_id, rid, sid)
);

CREATE TABLE IF NOT EXISTS filespecs_mirror (
	issue_id VARCHAR(64) NOT NULL,
	rid VARCHAR(64) NOT NULL,
	sid VARCHAR(64) NOT NULL,
	filespec VARCHAR(1024) NOT NULL,
	PRIMARY KEY (issue_id, rid, sid, filespec)
);

CREATE TABLE IF NOT EXISTS config (
	rid VARCHAR(64) NOT NULL,
	sid VARCHAR(64) NOT NULL,
	config_key VARCHAR(128) NOT NULL,
	config_value VARCHAR(1024),
	PRIMARY KEY (rid, sid, config_key)
);

CREATE TABLE IF NOT EXISTS replications (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	rid VARCHAR(64) NOT NULL,
	sid VARCHAR(64) NOT NULL,
	start DATETIME NOT NULL,
	end DATETIME NULL,
	completed BOOLEAN NOT NULL DEFAULT FALSE
);
`

// splitStatements splits a multi-statement DDL block on ";" the way
// the teacher's schema loader does, since MySQL/Dolt connections do
// not accept multiple statements in one Exec.
func splitStatements(block string) []string {
	var out []string
	for _, stmt := range splitOnSemicolon(block) {
		out = append(out, stmt)
	}
	return out
}

func splitOnSemicolon(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ';' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}
