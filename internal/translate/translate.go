// Package translate implements the field translators that convert
// values between side-0 (issue store) and side-1 (job store)
// representations: keyword, enum, status, date, timestamp, text, int
// and user. Each translator is a pair of pure functions, To1 and To0;
// only the user translator needs to consult both sides' directories,
// via the Directories passed in Context.
package translate

import "fmt"

// Translator converts a field value between side 0 and side 1.
type Translator interface {
	To1(v string, ctx Context) (string, error)
	To0(v string, ctx Context) (string, error)
}

// Context carries whatever a translator needs beyond the bare value.
// Most translators ignore it; the user translator uses Directories.
type Context struct {
	Directories *UserDirectories
}

// TranslationError distinguishes translation failures from other
// error kinds so the replicator core can choose whether to revert a
// job->issue write or simply propagate.
type TranslationError struct {
	Field string
	Value string
	Cause string
}

func (e *TranslationError) Error() string {
	return fmt.Sprintf("translate field %q value %q: %s", e.Field, e.Value, e.Cause)
}

func newTranslationError(field, value, cause string) error {
	return &TranslationError{Field: field, Value: value, Cause: cause}
}
