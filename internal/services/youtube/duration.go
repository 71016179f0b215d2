package youtube

import "strings"

// ParseISODuration converts an ISO-8601 duration of the PT#H#M#S form to
// seconds. Returns nil for malformed input or durations with date components.
func ParseISODuration(s string) *int {
	rest, ok := strings.CutPrefix(s, "PT")
	if !ok || rest == "" {
		return nil
	}

	total := 0
	value := 0
	haveDigits := false
	for _, r := range rest {
		switch {
		case r >= '0' && r <= '9':
			value = value*10 + int(r-'0')
			haveDigits = true
		case r == 'H':
			if !haveDigits {
				return nil
			}
			total += value * 3600
			value, haveDigits = 0, false
		case r == 'M':
			if !haveDigits {
				return nil
			}
			total += value * 60
			value, haveDigits = 0, false
		case r == 'S':
			if !haveDigits {
				return nil
			}
			total += value
			value, haveDigits = 0, false
		default:
			return nil
		}
	}
	if haveDigits {
		// Trailing digits without a unit designator.
		return nil
	}
	return &total
}
