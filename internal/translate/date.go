package translate

import (
	"strconv"
	"time"
)

// Side1DateMode selects which of the two side-1 date encodings a job
// store instance uses.
type Side1DateMode int

const (
	Side1DateSlash Side1DateMode = iota
	Side1DateEpoch
)

const side0DateLayout = "2006-01-02 15:04:05"
const side1SlashLayout = "2006/01/02 15:04:05"

// DateTranslator converts between side-0's "YYYY-MM-DD HH:MM:SS" and
// side-1's configured date encoding.
type DateTranslator struct {
	Mode Side1DateMode
}

func (d DateTranslator) To1(v string, _ Context) (string, error) {
	t, err := time.ParseInLocation(side0DateLayout, v, time.UTC)
	if err != nil {
		return "", newTranslationError("date", v, "not a side-0 date: "+err.Error())
	}
	if d.Mode == Side1DateEpoch {
		return strconv.FormatInt(t.Unix(), 10), nil
	}
	return t.Format(side1SlashLayout), nil
}

func (d DateTranslator) To0(v string, _ Context) (string, error) {
	var t time.Time
	if d.Mode == Side1DateEpoch {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", newTranslationError("date", v, "not an epoch seconds value: "+err.Error())
		}
		t = time.Unix(secs, 0).UTC()
	} else {
		parsed, err := time.ParseInLocation(side1SlashLayout, v, time.UTC)
		if err != nil {
			return "", newTranslationError("date", v, "not a side-1 date: "+err.Error())
		}
		t = parsed
	}
	return t.Format(side0DateLayout), nil
}
