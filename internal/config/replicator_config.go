// Package config loads the replicator's static configuration from a
// YAML file via viper, the same viper.New/SetConfigFile/SetConfigType/
// ReadInConfig idiom internal/labelmutex/policy.go uses to parse a
// config.yaml section, generalized here to cover the whole instance
// configuration instead of one validation section.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvVar is the single environment variable tbridge consults for the
// config file path when one isn't passed explicitly on the command
// line, mirroring the teacher's one-env-var-per-setting convention
// collapsed to the single path this system needs.
const EnvVar = "TBRIDGE_CONFIG"

// IssueSideConfig carries the issue store's connection parameters.
type IssueSideConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// JobSideConfig carries the job store subprocess client's connection
// parameters.
type JobSideConfig struct {
	Binary  string        `mapstructure:"binary"`
	Dir     string        `mapstructure:"dir"`
	Port    string        `mapstructure:"port"`
	User    string        `mapstructure:"user"`
	Client  string        `mapstructure:"client"`
	Env     []string      `mapstructure:"env"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FeatureSet is the set of optional replication behaviors enabled for
// this instance: the source's untyped "hasattr-style feature probing"
// modeled here as an explicit set of booleans populated once at
// startup, per SPEC_FULL.md's redesign note.
type FeatureSet struct {
	Fixes               bool `mapstructure:"fixes"`
	Filespecs            bool `mapstructure:"filespecs"`
	UsePerforceJobnames bool `mapstructure:"use_native_jobnames"`
}

// TranslatorConfig carries the parameters the field-map's per-field
// translators need: the status table's source vocabulary and
// prohibited-name prefix, the date encoding the job store uses, and
// the user translator's strictness mode.
type TranslatorConfig struct {
	Side0Statuses      []string `mapstructure:"side0_statuses"`
	ClosedStatus       string   `mapstructure:"closed_status"`
	ProhibitedPrefix   string   `mapstructure:"prohibited_prefix"`
	Side1DateMode      string   `mapstructure:"side1_date_mode"` // "slash" or "epoch"
	FixUserMode        string   `mapstructure:"fix_user_mode"`   // "strict" or "lax"
	FieldUserMode      string   `mapstructure:"field_user_mode"` // "strict" or "lax"
	BookkeepingSide0ID string   `mapstructure:"bookkeeping_side0_id"`
	BookkeepingSide1User string `mapstructure:"bookkeeping_side1_user"`
}

// FieldMappingConfig names one issue/job field pair and the
// translator kind to use between them.
type FieldMappingConfig struct {
	IssueField string `mapstructure:"issue_field"`
	JobField   string `mapstructure:"job_field"`
	// Kind selects the translator: "text", "keyword", "enum", "int",
	// "status", "date", "timestamp", "user", or "fix_user" (the lax
	// user translator used for fix/changelist user fields).
	Kind string `mapstructure:"kind"`
}

// PredicateConfig configures the new-job acceptance hook (spec's
// "predicate hooks", the one permitted form of user-supplied logic
// beyond field mapping): an unlinked job is accepted for replication
// or migration only if it matches every configured constraint, and
// no job is accepted when no constraint is configured.
type PredicateConfig struct {
	AllowedClients      []string `mapstructure:"allowed_clients"`
	RequiredJobPrefixes []string `mapstructure:"required_jobname_prefixes"`
	// ExcludedIssueStatuses names side-0 statuses that are never
	// replicable, e.g. a locally-triaged status that should never
	// cross to the job store.
	ExcludedIssueStatuses []string `mapstructure:"excluded_issue_statuses"`
}

// NotificationConfig carries the mail notifier's recipient settings.
type NotificationConfig struct {
	AdminEmail string `mapstructure:"admin_email"`
	FromName   string `mapstructure:"from_name"`
}

// ReplicatorConfig is the complete, file-loaded configuration for one
// replicator instance: the (rid, sid) pair, both sides' connection
// parameters, poll-period bounds, the feature set, translator
// configuration, predicate hook configuration, and notification
// settings.
type ReplicatorConfig struct {
	RID string `mapstructure:"rid"`
	SID string `mapstructure:"sid"`

	IssueSide IssueSideConfig `mapstructure:"issue_side"`
	JobSide   JobSideConfig   `mapstructure:"job_side"`

	PollPeriodBase time.Duration `mapstructure:"poll_period_base"`
	PollPeriodMax  time.Duration `mapstructure:"poll_period_max"`

	Features    FeatureSet           `mapstructure:"features"`
	Translators TranslatorConfig     `mapstructure:"translators"`
	FieldMap    []FieldMappingConfig `mapstructure:"field_map"`
	Predicate   PredicateConfig      `mapstructure:"predicate"`
	ConflictPolicy string             `mapstructure:"conflict_policy"` // "side0", "side1", or "no-op"

	Notification NotificationConfig `mapstructure:"notification"`
}

const (
	defaultPollPeriodBase = 30 * time.Second
	defaultPollPeriodMax  = 30 * time.Minute
)

// Load reads path as a YAML file into a ReplicatorConfig, silently
// filling in safe defaults for settings left empty rather than
// failing outright — except for the handful of fields that are fatal
// when absent, checked by Validate.
func Load(path string) (*ReplicatorConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg ReplicatorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

// LoadFromEnv resolves the config path from explicitPath, falling
// back to TBRIDGE_CONFIG when explicitPath is empty, the same
// single-env-var fallback pattern spec §6 describes for the CLI.
func LoadFromEnv(explicitPath string) (*ReplicatorConfig, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file given and %s is not set", EnvVar)
	}
	return Load(path)
}

func applyDefaults(cfg *ReplicatorConfig) {
	if cfg.PollPeriodBase <= 0 {
		cfg.PollPeriodBase = defaultPollPeriodBase
	}
	if cfg.PollPeriodMax <= 0 {
		cfg.PollPeriodMax = defaultPollPeriodMax
	}
	if cfg.Translators.ClosedStatus == "" {
		cfg.Translators.ClosedStatus = "closed"
	}
	if cfg.Translators.ProhibitedPrefix == "" {
		cfg.Translators.ProhibitedPrefix = "p4dti"
	}
	if cfg.ConflictPolicy == "" {
		cfg.ConflictPolicy = "side0"
	}
	if strings.TrimSpace(cfg.Notification.FromName) == "" {
		cfg.Notification.FromName = "tbridge"
	}
}

// Validate checks the handful of settings that are fatal when
// missing: an empty optional setting gets a default, but a missing
// *required* value does not.
func (cfg *ReplicatorConfig) Validate() error {
	var missing []string
	if cfg.RID == "" {
		missing = append(missing, "rid")
	}
	if cfg.SID == "" {
		missing = append(missing, "sid")
	}
	if cfg.IssueSide.Database == "" {
		missing = append(missing, "issue_side.database")
	}
	if cfg.JobSide.Binary == "" {
		missing = append(missing, "job_side.binary")
	}
	if cfg.Translators.BookkeepingSide0ID == "" {
		missing = append(missing, "translators.bookkeeping_side0_id")
	}
	if cfg.Translators.BookkeepingSide1User == "" {
		missing = append(missing, "translators.bookkeeping_side1_user")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required setting(s): %s", strings.Join(missing, ", "))
	}
	return nil
}
