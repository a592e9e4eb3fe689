package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func statementDoc() map[string]any {
	return map[string]any{
		"_type": "https://in-toto.io/Statement/v1",
		"subject": []any{map[string]any{
			"name":   "app.tar",
			"digest": map[string]any{"sha256": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
		}},
		"predicateType": "https://slsa.dev/provenance/v1",
		"predicate":     map[string]any{"buildDefinition": map[string]any{}},
	}
}

func TestValidateBuiltinInToto(t *testing.T) {
	errs, err := ValidateBuiltin(InToto, statementDoc())
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) != 0 {
		t.Fatalf("schema should pass: %v", errs)
	}
}

func TestValidateBuiltinInTotoViolations(t *testing.T) {
	doc := statementDoc()
	doc["subject"] = []any{map[string]any{"name": "x", "digest": map[string]any{"sha256": "not-hex"}}}
	errs, err := ValidateBuiltin(InToto, doc)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) == 0 {
		t.Fatal("expected violations for non-hex digest")
	}
}

func TestValidateBuiltinDSSE(t *testing.T) {
	ok := map[string]any{"payload": "e30=", "payloadType": "application/vnd.in-toto+json", "signatures": []any{map[string]any{"keyid": "k", "sig": "c2ln"}}}
	errs, err := ValidateBuiltin(DSSE, ok)
	if err != nil || len(errs) != 0 {
		t.Fatalf("errs = %v, err = %v", errs, err)
	}
	bad := map[string]any{"payload": "e30=", "payloadType": "t", "signatures": []any{map[string]any{"keyid": "k"}}}
	errs, err = ValidateBuiltin(DSSE, bad)
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) == 0 {
		t.Fatal("signature without sig should fail")
	}
}

func TestValidateBuiltinSigstore(t *testing.T) {
	doc := map[string]any{
		"mediaType":            "application/vnd.dev.sigstore.bundle+json;version=0.1",
		"verificationMaterial": map[string]any{"x509CertificateChain": map[string]any{"certificates": []any{map[string]any{"rawBytes": "MIIB"}}}},
		"tlogEntries":          []any{map[string]any{}},
	}
	errs, err := ValidateBuiltin(Sigstore, doc)
	if err != nil || len(errs) != 0 {
		t.Fatalf("errs = %v, err = %v", errs, err)
	}
}

func TestValidateBuiltinUnknown(t *testing.T) {
	if _, err := ValidateBuiltin("nope", map[string]any{}); err == nil {
		t.Fatal("expected error for unknown schema")
	}
}

func TestBuiltins(t *testing.T) {
	if got := strings.Join(Builtins(), ","); got != "dsse,intoto,sigstore" {
		t.Fatalf("builtins = %s", got)
	}
}

func TestValidateFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.schema.json")
	if err := os.WriteFile(path, []byte(`{"type":"object","required":["id"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	errs, err := Validate(path, map[string]any{"other": 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(errs) == 0 {
		t.Fatal("expected schema violations")
	}
}

func TestValidateMissingSchemaFile(t *testing.T) {
	_, err := Validate(filepath.Join(t.TempDir(), "missing.schema.json"), map[string]any{})
	if err == nil {
		t.Fatal("expected schema loader error")
	}
	if !strings.Contains(err.Error(), "validate") {
		t.Fatalf("unexpected error: %v", err)
	}
}
