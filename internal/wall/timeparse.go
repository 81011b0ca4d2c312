package wall

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrUnparseableTime indicates that a backend timestamp string matched no
// supported layout.
var ErrUnparseableTime = errors.New("wall: unparseable timestamp")

var isoLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseBackendTime normalizes a backend-supplied timestamp. ISO-parseable
// strings are parsed directly; otherwise the localized
// "dd/mm/yyyy hh:mm a. m." display format is decoded. The meridiem token may
// contain internal spaces and periods ("p. m.", "p.m.", "pm"), so everything
// after the clock reading is folded together before inspection.
func ParseBackendTime(value string, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrUnparseableTime)
	}
	if loc == nil {
		loc = time.Local
	}

	for _, layout := range isoLayouts {
		if parsed, err := time.Parse(layout, trimmed); err == nil {
			return parsed, nil
		}
		if parsed, err := time.ParseInLocation(layout, trimmed, loc); err == nil {
			return parsed, nil
		}
	}

	return parseLocalizedTime(trimmed, loc)
}

func parseLocalizedTime(value string, loc *time.Location) (time.Time, error) {
	fields := strings.Fields(value)
	if len(fields) < 2 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnparseableTime, value)
	}

	dateParts := strings.Split(fields[0], "/")
	if len(dateParts) != 3 {
		return time.Time{}, fmt.Errorf("%w: bad date segment in %q", ErrUnparseableTime, value)
	}
	day, errDay := strconv.Atoi(dateParts[0])
	month, errMonth := strconv.Atoi(dateParts[1])
	year, errYear := strconv.Atoi(dateParts[2])
	if errDay != nil || errMonth != nil || errYear != nil {
		return time.Time{}, fmt.Errorf("%w: bad date segment in %q", ErrUnparseableTime, value)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, fmt.Errorf("%w: date out of range in %q", ErrUnparseableTime, value)
	}

	clockParts := strings.Split(fields[1], ":")
	if len(clockParts) < 2 {
		return time.Time{}, fmt.Errorf("%w: bad clock segment in %q", ErrUnparseableTime, value)
	}
	hour, errHour := strconv.Atoi(clockParts[0])
	minute, errMinute := strconv.Atoi(clockParts[1])
	if errHour != nil || errMinute != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("%w: bad clock segment in %q", ErrUnparseableTime, value)
	}

	meridiem := foldMeridiem(fields[2:])
	switch meridiem {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	case "":
		// 24-hour reading, nothing to shift.
	default:
		return time.Time{}, fmt.Errorf("%w: unknown meridiem %q in %q", ErrUnparseableTime, meridiem, value)
	}
	if hour > 23 {
		return time.Time{}, fmt.Errorf("%w: clock out of range in %q", ErrUnparseableTime, value)
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc), nil
}

func foldMeridiem(tokens []string) string {
	joined := strings.Join(tokens, "")
	joined = strings.ReplaceAll(joined, ".", "")
	joined = strings.ReplaceAll(joined, " ", "")
	return strings.ToLower(joined)
}
