package issuestore

import (
	"context"
	"fmt"

	"github.com/replicateio/tbridge/internal/translate"
)

// Side0Users returns the full user directory backing the user-field
// translator's side-0 map: every user id that has ever authored an
// activity-log entry, updated an issue, or is named in an extra field
// configured as a user reference, paired with its email from the
// issue tracker's own user table. Assumes a pre-existing "users" table
// the native issue tracker owns; this adapter only reads it.
func (s *Store) Side0Users(ctx context.Context) ([]translate.Side0User, error) {
	rows, err := s.queryContext(ctx, "SELECT id, email FROM users")
	if err != nil {
		return nil, fmt.Errorf("issuestore: side0_users: %w", err)
	}
	defer rows.Close()

	var users []translate.Side0User
	for rows.Next() {
		var u translate.Side0User
		if err := rows.Scan(&u.ID, &u.Email); err != nil {
			return nil, fmt.Errorf("issuestore: scan side0 user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
