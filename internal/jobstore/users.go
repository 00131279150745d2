package jobstore

import (
	"context"
	"fmt"

	"github.com/replicateio/tbridge/internal/translate"
)

// Side1Users returns every user known to the job store, for the user
// field translator's side-1 directory.
func (c *Client) Side1Users(ctx context.Context) ([]translate.Side1User, error) {
	out, err := c.run(ctx, []string{"users"}, nil)
	if err != nil {
		return nil, fmt.Errorf("jobstore: side1_users: %w", err)
	}
	recs, err := decodeAllRecords(out)
	if err != nil {
		return nil, fmt.Errorf("jobstore: decode users: %w", err)
	}

	users := make([]translate.Side1User, 0, len(recs))
	for _, rec := range recs {
		name := rec["User"]
		if name == "" {
			continue
		}
		users = append(users, translate.Side1User{Name: name, Email: rec["Email"]})
	}
	return users, nil
}
