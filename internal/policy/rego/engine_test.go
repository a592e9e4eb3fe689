package rego

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/ogulcanaydogan/attestview/internal/inspect"
	policyyaml "github.com/ogulcanaydogan/attestview/internal/policy/yaml"
)

func envelope(statement string) []byte {
	return []byte(`{"payloadType":"application/vnd.in-toto+json","payload":"` +
		base64.StdEncoding.EncodeToString([]byte(statement)) +
		`","signatures":[{"keyid":"k1","sig":"sig-value"}]}`)
}

func TestRegoParityWithYAML(t *testing.T) {
	policy, err := policyyaml.LoadPolicy(filepath.Join(repoRoot(t), "policy", "examples", "gate.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	regoPath := filepath.Join(repoRoot(t), "policy", "examples", "gate.rego")

	cases := []struct {
		name string
		doc  []byte
	}{
		{
			name: "slsa provenance with builder passes",
			doc:  envelope(`{"_type":"https://in-toto.io/Statement/v1","subject":[{"name":"a","digest":{"sha256":"abcd"}}],"predicateType":"https://slsa.dev/provenance/v1","predicate":{"builder":{"id":"ci"}}}`),
		},
		{
			name: "slsa provenance without builder fails",
			doc:  envelope(`{"_type":"https://in-toto.io/Statement/v1","subject":[{"name":"a","digest":{"sha256":"abcd"}}],"predicateType":"https://slsa.dev/provenance/v1","predicate":{}}`),
		},
		{
			name: "other predicate skips the gate",
			doc:  envelope(`{"_type":"https://in-toto.io/Statement/v1","subject":[{"name":"a","digest":{"sha256":"abcd"}}],"predicateType":"https://spdx.dev/Document","predicate":{}}`),
		},
		{
			name: "schema violation fails",
			doc:  []byte(`{"payloadType":"application/vnd.in-toto+json","payload":"e30=","signatures":[{"keyid":"k1"}]}`),
		},
		{
			name: "unknown pattern blocked",
			doc:  []byte(`{"hello":"world"}`),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := inspect.Run(tc.doc, inspect.Options{SchemaCheck: true})
			if err != nil {
				t.Fatal(err)
			}
			yamlViolations := policyyaml.Evaluate(policy, policyyaml.View(r))

			regoResult, err := Evaluate(context.Background(), regoPath, BuildInput(policy, r))
			if err != nil {
				t.Fatalf("rego evaluate: %v", err)
			}

			if (len(yamlViolations) == 0) != regoResult.Allow {
				t.Fatalf("allow mismatch: yaml=%v rego=%v", yamlViolations, regoResult)
			}
			if len(yamlViolations) != len(regoResult.Violations) {
				t.Fatalf("violation length mismatch: yaml=%v rego=%v", yamlViolations, regoResult.Violations)
			}
			for i := range yamlViolations {
				if yamlViolations[i] != regoResult.Violations[i] {
					t.Fatalf("violation mismatch at %d: yaml=%q rego=%q", i, yamlViolations[i], regoResult.Violations[i])
				}
			}
		})
	}
}

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("cannot resolve test file path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", "..", ".."))
}
