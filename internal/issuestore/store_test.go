package issuestore

import (
	"strings"
	"testing"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db.internal", Port: 3306, User: "tbridge", Password: "s3cret", Database: "tracker"}
	dsn := cfg.DSN()
	for _, want := range []string{"tbridge:", "db.internal:3306", "/tracker", "parseTime=true"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("DSN() = %q, missing %q", dsn, want)
		}
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"driver: bad connection", true},
		{"read: connection reset by peer", true},
		{"MySQL server has gone away", true},
		{"syntax error near SELECT", false},
	}
	for _, tt := range tests {
		if got := isRetryableError(errorString(tt.msg)); got != tt.want {
			t.Fatalf("isRetryableError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }
