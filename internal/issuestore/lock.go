package issuestore

import (
	"context"
	"fmt"
)

// lockedTables lists the tables a poll cycle may touch, in a fixed
// order. Nothing reads it at present: PollStart/PollEnd take no
// database table locks.
var lockedTables = []string{
	"issues", "issue_extra_fields", "activity_log",
	"links", "mirror_activity_log", "changelists_mirror", "fixes_mirror",
	"filespecs_mirror", "config", "replications",
}

// PollStart acquires the coarse per-poll lock and clears any deferred
// mail carried over from a previous cycle. The lock is an in-process
// mutex on the Store: it serialises poll cycles within this process
// only, and no database table lock is taken, so a human client or
// another process is not held off. It must be paired with PollEnd
// even when the poll cycle fails partway through.
func (s *Store) PollStart(ctx context.Context) error {
	s.mu.Lock()
	s.pendingMail = nil
	return nil
}

// DeferMail queues a mail-delivery shell invocation to run after the
// poll lock is released, in the working directory the notification
// package selects. Queuing happens inside the critical section so the
// message content reflects a consistent snapshot of the poll's
// outcome; delivery itself must not hold the lock, since shelling out
// to a mail transport can block far longer than a SQL round trip.
func (s *Store) DeferMail(send func() error) {
	s.pendingMail = append(s.pendingMail, send)
}

// PollEnd releases the poll lock and flushes deferred mail. It always
// releases the lock, even if one or more deferred sends fail; the
// first error encountered is returned after every send has been
// attempted.
func (s *Store) PollEnd(ctx context.Context) error {
	mail := s.pendingMail
	s.pendingMail = nil
	s.mu.Unlock()

	var firstErr error
	for _, send := range mail {
		if err := send(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("issuestore: deferred mail delivery: %w", err)
		}
	}
	return firstErr
}
