package translate

import (
	"strconv"
	"time"
)

const side0TimestampLayout = "20060102150405"

// TimestampTranslator converts between side-0's packed
// "YYYYMMDDhhmmss" form and side-1's configured date encoding, reusing
// DateTranslator's side-1 half.
type TimestampTranslator struct {
	Mode Side1DateMode
}

func (ts TimestampTranslator) To1(v string, ctx Context) (string, error) {
	t, err := time.ParseInLocation(side0TimestampLayout, v, time.UTC)
	if err != nil {
		return "", newTranslationError("timestamp", v, "not a packed timestamp: "+err.Error())
	}
	if ts.Mode == Side1DateEpoch {
		return strconv.FormatInt(t.Unix(), 10), nil
	}
	return t.Format(side1SlashLayout), nil
}

func (ts TimestampTranslator) To0(v string, ctx Context) (string, error) {
	var t time.Time
	if ts.Mode == Side1DateEpoch {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return "", newTranslationError("timestamp", v, "not an epoch seconds value: "+err.Error())
		}
		t = time.Unix(secs, 0).UTC()
	} else {
		parsed, err := time.ParseInLocation(side1SlashLayout, v, time.UTC)
		if err != nil {
			return "", newTranslationError("timestamp", v, "not a side-1 date: "+err.Error())
		}
		t = parsed
	}
	return t.Format(side0TimestampLayout), nil
}
