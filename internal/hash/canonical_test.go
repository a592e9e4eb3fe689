package hash

import (
	"strings"
	"testing"

	"github.com/ogulcanaydogan/attestview/internal/jsontree"
)

func parse(t *testing.T, s string) any {
	t.Helper()
	v, err := jsontree.ParseString(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	got, err := CanonicalJSON(parse(t, `{ "b": 2, "a": {"d": [1, 2], "c": null} }`))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"a":{"c":null,"d":[1,2]},"b":2}` {
		t.Fatalf("canonical = %s", got)
	}
}

func TestCanonicalJSONNumbers(t *testing.T) {
	got, err := CanonicalJSON(parse(t, `{"n":1.50,"e":1e3}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != `{"e":1000,"n":1.5}` {
		t.Fatalf("canonical = %s", got)
	}
}

func TestHashCanonicalJSONDeterministic(t *testing.T) {
	ha, _, err := HashCanonicalJSON(parse(t, `{"b":2,"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	hb, _, err := HashCanonicalJSON(parse(t, `{"a":1,"b":2}`))
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("expected equal digests, got %s vs %s", ha, hb)
	}
	if !strings.HasPrefix(ha, "sha256:") || len(ha) != len("sha256:")+64 {
		t.Fatalf("digest format = %s", ha)
	}
}

func TestDigestBytesKnown(t *testing.T) {
	got := DigestBytes([]byte(""))
	want := "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got != want {
		t.Fatalf("digest = %s", got)
	}
}
