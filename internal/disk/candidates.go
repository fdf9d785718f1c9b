package disk

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// The placeholder used when no hint and no identifier yields a phone.
const unknownPhone = "unknown"

var (
	sanitizeRe   = regexp.MustCompile(`[^0-9A-Za-z_-]`)
	nonAlnumRe   = regexp.MustCompile(`[^0-9A-Za-z]`)
	nonDigitRe   = regexp.MustCompile(`\D`)
	phoneShapeRe = regexp.MustCompile(`(\+7\d{10}|7\d{10}|8\d{10}|\d{10})`)
	digitRunRe   = regexp.MustCompile(`\d{6,}`)
	separatorRe  = regexp.MustCompile(`[^+\d]+`)
)

// Candidates builds the ordered list of remote filenames to probe for
// a recording. callTime may be zero and phones may be empty; the list
// is never empty and contains no duplicates.
func (c *Client) Candidates(id string, callTime time.Time, phones []string) []string {
	var result []string

	if !callTime.IsZero() {
		phone := resolvePhone(id, phones)
		result = append(result, c.timestampedName(callTime, phone, id))
	}

	safeID := sanitizeID(id)
	for _, ext := range []string{".mp3", ".wav", ".ogg"} {
		result = append(result, safeID+ext)
	}

	return dedupe(result)
}

// timestampedName is the primary candidate shape the telephony
// provider uses when exporting recordings: date, time, caller number
// and the recording id, joined by underscores.
func (c *Client) timestampedName(ts time.Time, phone, id string) string {
	local := ts.In(c.loc)
	datePart := local.Format("2006-01-02")
	timePart := local.Format("15-04-05")

	safePhone := nonAlnumRe.ReplaceAllString(phone, "")
	if safePhone == "" {
		safePhone = unknownPhone
	}
	safeID := id
	if safeID == "" {
		safeID = "id"
	}
	safeID = sanitizeRe.ReplaceAllString(safeID, "-")

	return fmt.Sprintf("%s_%s_%s_%s.mp3", datePart, timePart, safePhone, safeID)
}

func sanitizeID(id string) string {
	return sanitizeRe.ReplaceAllString(id, "-")
}

// resolvePhone picks a display phone number: the first hint that
// normalizes wins, then a number recovered from the decoded
// identifier, then the "unknown" placeholder.
func resolvePhone(id string, hints []string) string {
	for _, hint := range hints {
		if formatted := formatPhone(hint); formatted != "" {
			return formatted
		}
	}
	if decoded := phoneFromID(id); decoded != "" {
		return decoded
	}
	return unknownPhone
}

// formatPhone normalizes a phone-number-like string to the canonical
// 11-digit "7XXXXXXXXXX" form. It returns "" when the digits do not
// fit any accepted shape.
func formatPhone(number string) string {
	digits := nonDigitRe.ReplaceAllString(number, "")
	if digits == "" {
		return ""
	}
	if len(digits) > 11 && strings.HasPrefix(digits, "007") {
		digits = digits[2:]
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "8") {
		digits = "7" + digits[1:]
	}
	if len(digits) == 10 {
		digits = "7" + digits
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "7") {
		return digits
	}
	return ""
}

// phoneFromID recovers a phone number from a base64-encoded recording
// identifier. Some providers encode "caller:line" style text into the
// id; any phone-shaped digit run inside the decoded text is usable.
func phoneFromID(id string) string {
	decoded, err := base64.StdEncoding.DecodeString(id)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(id)
		if err != nil {
			return ""
		}
	}
	text := string(decoded)

	if match := phoneShapeRe.FindString(text); match != "" {
		if formatted := formatPhone(match); formatted != "" {
			return formatted
		}
	}

	for _, part := range separatorRe.Split(text, -1) {
		if part == "" {
			continue
		}
		if formatted := formatPhone(part); formatted != "" {
			return formatted
		}
	}

	for _, chunk := range digitRunRe.FindAllString(text, -1) {
		if formatted := formatPhone(chunk); formatted != "" {
			return formatted
		}
	}

	// Last resort: coerce the first long digit run into the
	// canonical shape.
	if runs := digitRunRe.FindAllString(text, -1); len(runs) > 0 {
		first := runs[0]
		if len(first) == 10 {
			if formatted := formatPhone("7" + first); formatted != "" {
				return formatted
			}
		}
		if len(first) == 11 && strings.HasPrefix(first, "8") {
			if formatted := formatPhone("7" + first[1:]); formatted != "" {
				return formatted
			}
		}
	}

	return ""
}

// dedupe removes duplicates preserving first-seen order.
func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := names[:0]
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result
}
