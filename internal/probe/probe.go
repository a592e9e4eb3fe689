// Package probe holds the codec predicates used to decide whether a JSON
// leaf is an encoded payload.
package probe

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// EpochLayout is the display format for decoded timestamps (always UTC).
const EpochLayout = "2006-01-02 15:04:05"

// IsJSONText reports whether s is a complete JSON value of any type.
func IsJSONText(s string) bool {
	return json.Valid([]byte(s))
}

// IsBase64 reports whether s is a canonical standard Base64 encoding: it
// must decode and re-encode to exactly s.
func IsBase64(s string) bool {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return false
	}
	return base64.StdEncoding.EncodeToString(raw) == s
}

// DecodeBase64 decodes standard Base64.
func DecodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// IsReadableText reports whether more than 80% of the characters in s are
// printable ASCII, tab, LF or CR. Characters are counted per rune, so
// multi-byte UTF-8 and invalid bytes each count once; mostly-ASCII UTF-8
// text passes where a per-byte count would reject it.
func IsReadableText(s string) bool {
	total, printable := 0, 0
	for _, r := range s {
		total++
		if (r >= 0x20 && r <= 0x7e) || r == '\t' || r == '\n' || r == '\r' {
			printable++
		}
	}
	if total == 0 {
		return false
	}
	return float64(printable)/float64(total) > 0.8
}

// IsEpochTimestamp reports whether s is a 10-digit (seconds) or 13-digit
// (milliseconds) Unix time that lands on a real calendar date.
func IsEpochTimestamp(s string) bool {
	_, ok := EpochTime(s)
	return ok
}

// EpochTime converts a 10- or 13-digit epoch string to a UTC time.
func EpochTime(s string) (time.Time, bool) {
	if len(s) != 10 && len(s) != 13 {
		return time.Time{}, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return time.Time{}, false
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if len(s) == 10 {
		n *= 1000
	}
	t := time.UnixMilli(n).UTC()
	if t.Year() < 1 || t.Year() > 9999 {
		return time.Time{}, false
	}
	return t, true
}

// FormatEpoch renders t as "YYYY-MM-DD HH:mm:ss" in UTC.
func FormatEpoch(t time.Time) string {
	return t.UTC().Format(EpochLayout)
}

// NumberText returns the decimal form of a JSON number the way a
// JavaScript engine prints it for integer-valued doubles below 1e21, so
// 1.7e9 and 1700000000.0 both become "1700000000". Other numbers keep
// their literal text.
func NumberText(n json.Number) string {
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return n.String()
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return n.String()
}
