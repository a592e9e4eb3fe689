package probe

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

func TestIsJSONText(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{`{"b":1}`, true},
		{`[1,2]`, true},
		{`"bare"`, true},
		{`123`, true},
		{`null`, true},
		{`{b:1}`, false},
		{``, false},
		{`hello`, false},
	}
	for _, tc := range cases {
		if got := IsJSONText(tc.in); got != tc.want {
			t.Errorf("IsJSONText(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsBase64RoundTrip(t *testing.T) {
	valid := base64.StdEncoding.EncodeToString([]byte("hello world"))
	cases := []struct {
		in   string
		want bool
	}{
		{valid, true},
		{"aGVsbG8=", true},
		{"aGVsbG8", false},   // missing padding
		{"aGVsbG9=", false},  // non-canonical trailing bits
		{"not base64!", false},
		{"", true},
	}
	for _, tc := range cases {
		if got := IsBase64(tc.in); got != tc.want {
			t.Errorf("IsBase64(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsReadableText(t *testing.T) {
	if !IsReadableText("plain text\twith\ttabs\n") {
		t.Error("plain text should be readable")
	}
	if IsReadableText("") {
		t.Error("empty text is not readable")
	}
	if IsReadableText(string([]byte{0x30, 0x82, 0x01, 0x0a, 0x02, 0x82})) {
		t.Error("DER-like bytes should not be readable")
	}
	// 4 of 5 printable is exactly 80%, which is not more than 80%.
	if IsReadableText("abcd\x01") {
		t.Error("80% printable must not pass")
	}
	if !IsReadableText("abcdefghi\x01") {
		t.Error("90% printable should pass")
	}
	// 10 of 12 runes are printable; counted per byte it would be 10 of 14.
	if !IsReadableText("abcdefghij\u00e9\u00e9") {
		t.Error("two-byte runes should count once each")
	}
}

func TestIsEpochTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"1700000000", true},
		{"1700000000000", true},
		{"0000000000", true},
		{"170000000", false},
		{"17000000000", false},
		{"17000000x0", false},
		{"-700000000", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsEpochTimestamp(tc.in); got != tc.want {
			t.Errorf("IsEpochTimestamp(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestEpochFormatting(t *testing.T) {
	ts, ok := EpochTime("1700000000")
	if !ok {
		t.Fatal("expected epoch")
	}
	if got := FormatEpoch(ts); got != "2023-11-14 22:13:20" {
		t.Fatalf("seconds format = %q", got)
	}
	ts, ok = EpochTime("1700000000123")
	if !ok {
		t.Fatal("expected epoch")
	}
	if got := FormatEpoch(ts); got != "2023-11-14 22:13:20" {
		t.Fatalf("millis format = %q", got)
	}
}

func TestNumberText(t *testing.T) {
	cases := map[string]string{
		"1700000000":   "1700000000",
		"1.7e9":        "1700000000",
		"1700000000.0": "1700000000",
		"1.5":          "1.5",
		"12":           "12",
	}
	for in, want := range cases {
		if got := NumberText(json.Number(in)); got != want {
			t.Errorf("NumberText(%s) = %q, want %q", in, got, want)
		}
	}
}
