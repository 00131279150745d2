//go:build integration

package issuestore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/dolt"

	"github.com/replicateio/tbridge/internal/issuestore"
	"github.com/replicateio/tbridge/internal/types"
)

// TestStoreAgainstRealDolt drives the store through a real MySQL-wire
// server instead of a mock, the way internal/storage/dolt's own server
// mode is meant to be exercised. Needs a working Docker daemon; run
// with -tags=integration.
func TestStoreAgainstRealDolt(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := dolt.Run(ctx, "dolthub/dolt-sql-server:latest",
		dolt.WithDatabase("tbridge_it"),
		dolt.WithUsername("root"),
		dolt.WithPassword(""),
	)
	require.NoError(t, err, "start dolt container")
	defer func() { require.NoError(t, container.Terminate(ctx)) }()

	host, err := container.Host(ctx)
	require.NoError(t, err, "container host")
	port, err := container.MappedPort(ctx, "3306/tcp")
	require.NoError(t, err, "container port")

	store, err := issuestore.Open(ctx, issuestore.Config{
		Host:       host,
		Port:       port.Int(),
		User:       "root",
		Database:   "tbridge_it",
		RID:        "rid-it",
		SID:        "sid-it",
		MaxElapsed: 30 * time.Second,
	})
	require.NoError(t, err, "open issue store against dolt")
	defer store.Close()

	created, err := store.NewIssue(ctx, types.Issue{
		Title:    "integration test issue",
		Status:   types.StatusNew,
		Priority: 1,
	}, "")
	require.NoError(t, err, "new_issue")
	require.NotEmpty(t, created.IssueID)

	fetched, err := store.Issue(ctx, created.IssueID)
	require.NoError(t, err, "issue")
	require.Equal(t, "integration test issue", fetched.Title)

	since, err := store.AllIssuesSince(ctx, time.Time{})
	require.NoError(t, err, "all_issues_since")
	require.NotEmpty(t, since)
}
