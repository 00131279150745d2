package translate

import "strconv"

// IntTranslator converts decimal integer fields. An empty side-1
// value is treated as 0 on side 0; the reverse direction always
// produces a non-empty decimal string.
type IntTranslator struct{}

func (IntTranslator) To1(v string, _ Context) (string, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return "", newTranslationError("int", v, "not an integer: "+err.Error())
	}
	return strconv.Itoa(n), nil
}

func (IntTranslator) To0(v string, _ Context) (string, error) {
	if v == "" {
		return "0", nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return "", newTranslationError("int", v, "not an integer: "+err.Error())
	}
	return strconv.Itoa(n), nil
}
