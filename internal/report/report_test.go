package report

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/attestview/internal/inspect"
)

const statement = `{"_type":"https://in-toto.io/Statement/v1","subject":[{"name":"app","digest":{"sha256":"abcdef"}}],"predicateType":"https://slsa.dev/provenance/v1","predicate":{"z":1,"a":"x|y"}}`

func sampleReport(t *testing.T) inspect.Report {
	t.Helper()
	raw := `{"payloadType":"application/vnd.in-toto+json","payload":"` +
		base64.StdEncoding.EncodeToString([]byte(statement)) +
		`","signatures":[{"keyid":"k1","sig":"sig-value"}],"created":"1700000000"}`
	r, err := inspect.Run([]byte(raw), inspect.Options{SchemaCheck: true})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	return r
}

func TestBuildMarkdown(t *testing.T) {
	md := BuildMarkdown(sampleReport(t))

	for _, want := range []string{
		"# Attestation Inspection Report",
		"Pattern: **DSSE**",
		"Confidence: `0.9`",
		"Transformations: `2`",
		"## Metadata",
		"| Payload Type | application/vnd.in-toto+json |",
		"| Signature 0 | keyid k1, cert false |",
		"| Subject | app |",
		"## Transformations",
		"| `payload` | Base64->JSON |",
		"| `created` | Epoch | 1700000000 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if strings.Contains(md, "## Schema Violations") || strings.Contains(md, "## Certificates") {
		t.Error("empty sections should be omitted")
	}
}

func TestBuildMarkdownSchemaAndCertificates(t *testing.T) {
	r := sampleReport(t)
	r.SchemaErrors = []string{"signatures.0: sig is required"}
	r, err := withBadCert(r)
	if err != nil {
		t.Fatal(err)
	}
	md := BuildMarkdown(r)
	if !strings.Contains(md, "## Schema Violations") || !strings.Contains(md, "- signatures.0: sig is required") {
		t.Error("missing schema violations")
	}
	if !strings.Contains(md, "| 0 | Error parsing certificate | Unknown | Unknown | false | Unknown Unknown |") {
		t.Errorf("missing certificate row:\n%s", md)
	}
}

func withBadCert(r inspect.Report) (inspect.Report, error) {
	rep, err := inspect.Run([]byte(`{"signatures":[{"cert":"bad"}]}`), inspect.Options{Certificates: true})
	if err != nil {
		return r, err
	}
	r.Certificates = rep.Certificates
	return r, nil
}

func TestCellEscapesAndTruncates(t *testing.T) {
	if got := cell("a|b\nc"); got != `a\|b c` {
		t.Errorf("cell = %q", got)
	}
	long := strings.Repeat("x", 100)
	if got := cell(long); len(got) != maxCellLen || !strings.HasSuffix(got, "...") {
		t.Errorf("cell len = %d", len(got))
	}
}

func TestBuildJSON(t *testing.T) {
	raw, err := BuildJSON(sampleReport(t))
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	pat := decoded["pattern"].(map[string]any)
	if pat["type"] != "DSSE" {
		t.Errorf("pattern = %v", pat)
	}
	s := string(raw)
	if strings.Index(s, `"z": 1`) > strings.Index(s, `"a": "x|y"`) {
		t.Error("predicate key order not preserved")
	}
	if !strings.HasSuffix(s, "}\n") {
		t.Error("expected trailing newline")
	}
}

func TestBuildYAMLKeepsOrder(t *testing.T) {
	raw, err := BuildYAML(sampleReport(t))
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	keys := []string{"inputDigest:", "treeDigest:", "pattern:", "transformations:", "tree:"}
	last := -1
	for _, k := range keys {
		i := strings.Index(s, k)
		if i < 0 || i < last {
			t.Fatalf("key %s out of order in\n%s", k, s)
		}
		last = i
	}
	if !strings.Contains(s, "created: \"2023-11-14 22:13:20\"") && !strings.Contains(s, "created: 2023-11-14 22:13:20") {
		t.Errorf("normalized epoch missing:\n%s", s)
	}

	var decoded map[string]any
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if decoded["pattern"].(map[string]any)["confidence"] != 0.9 {
		t.Errorf("confidence = %v", decoded["pattern"])
	}
}

func TestToNodeQuotesAmbiguousStrings(t *testing.T) {
	r := sampleReport(t)
	r.SchemaErrors = []string{"true", "123", "null"}
	raw, err := BuildYAML(r)
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		SchemaErrors []any `yaml:"schemaErrors"`
	}
	if err := yaml.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	for i, v := range decoded.SchemaErrors {
		if _, ok := v.(string); !ok {
			t.Errorf("schemaErrors[%d] = %#v, want string", i, v)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "json": FormatJSON, "md": FormatMarkdown, "markdown": FormatMarkdown, "yml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("html"); err == nil {
		t.Error("expected error for html")
	}
}

func TestWrite(t *testing.T) {
	r := sampleReport(t)
	dir := t.TempDir()
	for _, f := range []Format{FormatJSON, FormatMarkdown, FormatYAML} {
		path := filepath.Join(dir, "out", "report."+string(f))
		if err := Write(path, f, r); err != nil {
			t.Fatalf("Write %s: %v", f, err)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if len(raw) == 0 {
			t.Errorf("%s report is empty", f)
		}
	}
}

func TestBuildWithoutTreeDigest(t *testing.T) {
	r, err := inspect.Run([]byte(`{"n": 1e400}`), inspect.Options{})
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	if md := BuildMarkdown(r); strings.Contains(md, "Normalized Digest") {
		t.Errorf("markdown should omit the missing digest\n%s", md)
	}
	raw, err := BuildJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), "treeDigest") || !strings.Contains(string(raw), "1e400") {
		t.Errorf("json = %s", raw)
	}
}
