// Package types defines the shared data model replicated between the
// issue store (side 0) and the job store (side 1): issues, jobs, link
// rows, fixes, filespecs, changelists, replication records, config
// rows and the event-log position.
package types

import (
	"fmt"
	"time"
)

// Status is the side-0 lifecycle state of an Issue.
type Status string

const (
	StatusNew      Status = "new"
	StatusOpen     Status = "open"
	StatusResolved Status = "resolved"
	StatusVerified Status = "verified"
	StatusClosed   Status = "closed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusOpen, StatusResolved, StatusVerified, StatusClosed:
		return true
	}
	return false
}

// FixStatus is the status carried by a Fix association.
type FixStatus string

const (
	FixOpen      FixStatus = "open"
	FixClosed    FixStatus = "closed"
	FixSuspended FixStatus = "suspended"
)

func (s FixStatus) Valid() bool {
	switch s {
	case FixOpen, FixClosed, FixSuspended:
		return true
	}
	return false
}

// Field holds one named, typed value on an Issue. Extra configured
// fields live alongside the fixed ones in Issue.Extra, keyed by name.
type Field struct {
	Name  string
	Value string
}

// Issue is the authoritative record on side 0. Identity is the opaque
// IssueID; CreationTS and DeltaTS are the timestamps that drive
// changed_issues_since.
type Issue struct {
	IssueID     string
	Title       string
	Description string
	Status      Status
	Assignee    string
	Reporter    string
	Component   string
	Version     string
	Product     string
	Priority    int
	Extra       map[string]string

	CreationTS time.Time
	DeltaTS    time.Time

	// RID/SID of the owning replicator, empty if unowned.
	OwnerRID string
	OwnerSID string
}

// Validate enforces the structural constraints on an Issue: required
// title, bounded length, priority range, and enum membership. It does
// not enforce transition or permission rules — those are evaluated by
// the issue store's update path against the full state-transition
// table, not here.
func (i Issue) Validate() error {
	if i.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(i.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less")
	}
	if i.Priority < 0 || i.Priority > 4 {
		return fmt.Errorf("priority must be between 0 and 4")
	}
	if i.Status != "" && !i.Status.Valid() {
		return fmt.Errorf("invalid status %q", i.Status)
	}
	return nil
}

// JobFieldType enumerates the five side-1 jobspec datatypes, ranked
// from least to most restrictive for the compatibility lattice used
// by the jobspec manager (text < line < word < select; date is
// incompatible with all four).
type JobFieldType int

const (
	JobFieldText JobFieldType = iota
	JobFieldLine
	JobFieldWord
	JobFieldSelect
	JobFieldDate
)

func (t JobFieldType) String() string {
	switch t {
	case JobFieldWord:
		return "word"
	case JobFieldText:
		return "text"
	case JobFieldLine:
		return "line"
	case JobFieldSelect:
		return "select"
	case JobFieldDate:
		return "date"
	default:
		return "unknown"
	}
}

// JobFieldPersistence enumerates jobspec field persistence rules.
type JobFieldPersistence string

const (
	PersistOptional JobFieldPersistence = "optional"
	PersistDefault  JobFieldPersistence = "default"
	PersistRequired JobFieldPersistence = "required"
	PersistOnce     JobFieldPersistence = "once"
	PersistAlways   JobFieldPersistence = "always"
)

// JobField is one field descriptor in a jobspec.
type JobField struct {
	Code         int
	Name         string
	DataType     JobFieldType
	Length       int
	Persistence  JobFieldPersistence
	Preset       string
	AllowedValues []string
}

// JobSpec is the ordered list of field descriptors governing side-1
// records. Order matters: it is the order fields are declared to the
// job store and the order codes are scanned for clashes.
type JobSpec struct {
	Fields []JobField
}

// Field looks up a descriptor by name.
func (s JobSpec) Field(name string) (JobField, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return JobField{}, false
}

// Job is a record on side 1, identified by name (a word). Fields
// holds every named value including the P4DTI-* bookkeeping fields.
type Job struct {
	Name      string
	Fields    map[string]string
	EntryNum  int // side-1 event-log entry number this snapshot was read at
}

// Get returns a job field value, or "" if unset.
func (j Job) Get(name string) string {
	if j.Fields == nil {
		return ""
	}
	return j.Fields[name]
}

// LinkRow maps a side-0 issue to a side-1 job under an owning
// (rid, sid) pair. Migrated is non-zero iff the link was born by a
// migration import from side 1 rather than ordinary replication.
type LinkRow struct {
	IssueID  string
	JobName  string
	RID      string
	SID      string
	Migrated time.Time
}

// IsMigrated reports whether this link was created by migration.
func (l LinkRow) IsMigrated() bool {
	return !l.Migrated.IsZero()
}

// Fix is an association between an issue and a changelist.
type Fix struct {
	Change int
	Issue  string
	RID    string
	SID    string
	User   string
	Client string
	Status FixStatus
	Date   time.Time
}

// Key identifies a Fix within a change-number-keyed diff map.
func (f Fix) Key() int { return f.Change }

// Filespec associates an issue with a file-path pattern string.
type Filespec struct {
	Issue    string
	RID      string
	SID      string
	Filespec string
}

// Changelist is a side-1 revision, mirrored to side 0 for
// cross-system queries.
type Changelist struct {
	Change      int
	User        string
	Client      string
	Date        time.Time
	Description string
	Status      string
	RID         string
	SID         string
	Flags       string
}

// ReplicationRecord is one row of the side-0 replications table: a
// single poll cycle's (start, end, completed) bracket. The table is
// never empty after initialization; the newest row with Completed
// true is the last acknowledged mark.
type ReplicationRecord struct {
	ID        int64
	RID       string
	SID       string
	Start     time.Time
	End       time.Time
	Completed bool
}

// ConfigRow is one (rid, sid, key) -> value setting, including the
// schema-extension version under the reserved key "schema_version".
type ConfigRow struct {
	RID   string
	SID   string
	Key   string
	Value string
}

// EventLogPosition is the side-1 named counter tracking the last
// consumed journal entry number for a given counter name (normally
// "P4DTI-<rid>").
type EventLogPosition struct {
	Name  string
	Entry int
}

// PairClass classifies a paired (issue, job) by which side changed
// since the last poll, per the dispatch table.
type PairClass int

const (
	ClassIssueOnly PairClass = iota
	ClassJobOnly
	ClassBoth
)

func (c PairClass) String() string {
	switch c {
	case ClassIssueOnly:
		return "issue-only"
	case ClassJobOnly:
		return "job-only"
	case ClassBoth:
		return "both"
	default:
		return "unknown"
	}
}
