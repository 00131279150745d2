package translate

import "fmt"

// prohibitedNames are side-1 job status values that collide with
// reserved job-store keywords; they must be remapped at construction
// time rather than used verbatim.
var prohibitedNames = map[string]bool{
	"new":    true,
	"ignore": true,
}

// StatusTranslator is a table-driven, one-to-one mapping between
// side-0 and side-1 status values. It is built once at configuration
// time (not per value) from the list of side-0 statuses, the name of
// the side-0 status considered "closed", and a prefix used to remap
// prohibited side-1 names.
type StatusTranslator struct {
	to1 map[string]string
	to0 map[string]string
}

// NewStatusTranslator builds the status map. closedStatus must be one
// of side0Statuses; the resulting target set always contains "closed"
// even if the side-0 vocabulary has no status literally named that.
func NewStatusTranslator(side0Statuses []string, closedStatus, prefix string) (*StatusTranslator, error) {
	found := false
	for _, s := range side0Statuses {
		if s == closedStatus {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("status translator: closed status %q not in side-0 status list", closedStatus)
	}

	to1 := make(map[string]string, len(side0Statuses))
	to0 := make(map[string]string, len(side0Statuses))

	assign := func(s0, s1 string) error {
		if existing, ok := to0[s1]; ok && existing != s0 {
			return fmt.Errorf("status translator: %q and %q both map to side-1 status %q", existing, s0, s1)
		}
		to1[s0] = s1
		to0[s1] = s0
		return nil
	}

	for _, s0 := range side0Statuses {
		s1 := s0
		if s0 == closedStatus {
			s1 = "closed"
		} else if prohibitedNames[s0] {
			s1 = prefix + "_" + s0
		}
		if err := assign(s0, s1); err != nil {
			return nil, err
		}
	}

	if _, ok := to0["closed"]; !ok {
		return nil, fmt.Errorf("status translator: target set missing required %q status", "closed")
	}

	return &StatusTranslator{to1: to1, to0: to0}, nil
}

func (t *StatusTranslator) To1(v string, _ Context) (string, error) {
	s1, ok := t.to1[v]
	if !ok {
		return "", newTranslationError("status", v, "no side-1 status mapped")
	}
	return s1, nil
}

func (t *StatusTranslator) To0(v string, _ Context) (string, error) {
	s0, ok := t.to0[v]
	if !ok {
		return "", newTranslationError("status", v, "no side-0 status mapped")
	}
	return s0, nil
}
