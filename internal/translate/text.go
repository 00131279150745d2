package translate

import "strings"

// TextTranslator converts free-text fields (descriptions, comments)
// between side 0 and side 1. Side-1 text is stored with a trailing
// newline; side-0 text is stored without one. Blank-only lines are
// normalised to empty on the side-0 read so that side-1's own
// canonicalisation of such lines does not produce a spurious diff on
// the next poll; this is carried over exactly rather than "fixed",
// per the open question it resolves — deviating causes oscillating
// replications.
type TextTranslator struct{}

func (TextTranslator) To1(v string, _ Context) (string, error) {
	if v == "" {
		return "", nil
	}
	if strings.HasSuffix(v, "\n") {
		return v, nil
	}
	return v + "\n", nil
}

func (TextTranslator) To0(v string, _ Context) (string, error) {
	v = strings.TrimSuffix(v, "\n")
	lines := strings.Split(v, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n"), nil
}
