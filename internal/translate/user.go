package translate

import (
	"fmt"
	"strings"
)

// UserMode selects how the user translator handles a value with no
// counterpart on the other side.
type UserMode int

const (
	// UserStrict fails translation of an unknown user.
	UserStrict UserMode = iota
	// UserLax maps an unknown user to the configured bookkeeping user.
	// Used for fix/changelist user fields, where historical users may
	// have vanished from one directory but the association must still
	// be recorded somewhere.
	UserLax
)

// Side0User is one row of the side-0 user directory.
type Side0User struct {
	ID    string
	Email string
}

// Side1User is one row of the side-1 user directory.
type Side1User struct {
	Name  string
	Email string
}

// UserDirectories holds the four maps the user translator uses. They
// are built by BuildUserDirectories, which the engine calls at startup
// and on RefreshUserDirectories; they are not rebuilt at poll_start.
// The maps are the raw per-side
// email maps (duplicates flagged but all kept), the side0<->side1
// bijection built by matching lower-cased email (first seen wins),
// and the residual unmatched sets on each side.
type UserDirectories struct {
	side1UserToEmail map[string]string
	side1EmailToUser map[string][]string

	side0IDToEmail map[string]string
	side0EmailToID map[string][]string

	side0to1 map[string]string
	side1to0 map[string]string

	UnmatchedSide0 []string
	UnmatchedSide1 []string

	bookkeepingSide0 string
	bookkeepingSide1 string
}

// DuplicateEmailsSide0 returns side-0 emails claimed by more than one
// user id, for the startup report.
func (d *UserDirectories) DuplicateEmailsSide0() map[string][]string {
	return duplicatesOnly(d.side0EmailToID)
}

// DuplicateEmailsSide1 returns side-1 emails claimed by more than one
// user name, for the startup report.
func (d *UserDirectories) DuplicateEmailsSide1() map[string][]string {
	return duplicatesOnly(d.side1EmailToUser)
}

func duplicatesOnly(m map[string][]string) map[string][]string {
	out := make(map[string][]string)
	for k, v := range m {
		if len(v) > 1 {
			out[k] = v
		}
	}
	return out
}

// BuildUserDirectories constructs the four-map structure from both
// sides' raw user lists and validates that the integration's own
// bookkeeping user exists, is unique on side 0, and its email maps to
// the configured side-1 bookkeeping user — any violation is fatal, per
// the design note that the bookkeeping user is the keystone of lax
// mode.
func BuildUserDirectories(side0 []Side0User, side1 []Side1User, bookkeepingSide0ID, bookkeepingSide1User string) (*UserDirectories, error) {
	d := &UserDirectories{
		side1UserToEmail: make(map[string]string, len(side1)),
		side1EmailToUser: make(map[string][]string),
		side0IDToEmail:   make(map[string]string, len(side0)),
		side0EmailToID:   make(map[string][]string),
		side0to1:         make(map[string]string),
		side1to0:         make(map[string]string),
		bookkeepingSide0: bookkeepingSide0ID,
		bookkeepingSide1: bookkeepingSide1User,
	}

	for _, u := range side1 {
		email := strings.ToLower(u.Email)
		d.side1UserToEmail[u.Name] = email
		d.side1EmailToUser[email] = append(d.side1EmailToUser[email], u.Name)
	}
	for _, u := range side0 {
		email := strings.ToLower(u.Email)
		d.side0IDToEmail[u.ID] = email
		d.side0EmailToID[email] = append(d.side0EmailToID[email], u.ID)
	}

	side1Matched := make(map[string]bool, len(side1))
	for _, u := range side0 {
		email := strings.ToLower(u.Email)
		names, ok := d.side1EmailToUser[email]
		if !ok || len(names) == 0 {
			continue
		}
		if _, already := d.side0to1[u.ID]; already {
			continue
		}
		name := names[0]
		if _, taken := d.side1to0[name]; taken {
			continue
		}
		d.side0to1[u.ID] = name
		d.side1to0[name] = u.ID
		side1Matched[name] = true
	}

	for _, u := range side0 {
		if _, ok := d.side0to1[u.ID]; !ok {
			d.UnmatchedSide0 = append(d.UnmatchedSide0, u.ID)
		}
	}
	for _, u := range side1 {
		if !side1Matched[u.Name] {
			d.UnmatchedSide1 = append(d.UnmatchedSide1, u.Name)
		}
	}

	if err := d.validateBookkeepingUser(); err != nil {
		return nil, err
	}

	return d, nil
}

func (d *UserDirectories) validateBookkeepingUser() error {
	if len(d.side0EmailToID) == 0 && len(d.side0IDToEmail) == 0 {
		return fmt.Errorf("user translator: empty side-0 user directory")
	}
	email, ok := d.side0IDToEmail[d.bookkeepingSide0]
	if !ok {
		return fmt.Errorf("user translator: bookkeeping user %q not found on side 0", d.bookkeepingSide0)
	}
	ids := d.side0EmailToID[email]
	if len(ids) != 1 {
		return fmt.Errorf("user translator: bookkeeping user %q email %q is not unique on side 0", d.bookkeepingSide0, email)
	}

	side1Email, ok := d.side1UserToEmail[d.bookkeepingSide1]
	if !ok {
		return fmt.Errorf("user translator: bookkeeping user %q not found on side 1", d.bookkeepingSide1)
	}
	if side1Email != email {
		return fmt.Errorf("user translator: side-0 bookkeeping email %q does not match side-1 bookkeeping email %q", email, side1Email)
	}
	return nil
}

// UserTranslator is the user field translator. It requires
// ctx.Directories to be populated by BuildUserDirectories.
type UserTranslator struct {
	Mode UserMode
}

func (t UserTranslator) To1(v string, ctx Context) (string, error) {
	dirs := ctx.Directories
	if dirs == nil {
		return "", newTranslationError("user", v, "no user directories in context")
	}
	if name, ok := dirs.side0to1[v]; ok {
		return name, nil
	}
	if t.Mode == UserLax {
		return dirs.bookkeepingSide1, nil
	}
	return "", newTranslationError("user", v, "unknown side-0 user")
}

func (t UserTranslator) To0(v string, ctx Context) (string, error) {
	dirs := ctx.Directories
	if dirs == nil {
		return "", newTranslationError("user", v, "no user directories in context")
	}
	if id, ok := dirs.side1to0[v]; ok {
		return id, nil
	}
	if t.Mode == UserLax {
		return dirs.bookkeepingSide0, nil
	}
	return "", newTranslationError("user", v, "unknown side-1 user")
}
