//go:build e2e

package e2e

import (
	"encoding/base64"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-containerregistry/pkg/registry"

	policyyaml "github.com/ogulcanaydogan/attestview/internal/policy/yaml"
)

const provenance = `{"_type":"https://in-toto.io/Statement/v1","subject":[{"name":"app","digest":{"sha256":"abcdef"}}],"predicateType":"https://slsa.dev/provenance/v1","predicate":{"builder":{"id":"ci"},"metadata":{"buildStartedOn":"1700000000"}}}`

func repoRoot(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatalf("cannot resolve test file path")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

func examplePath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(repoRoot(t), "policy", "examples", name)
}

func examplePolicy(t *testing.T) policyyaml.Policy {
	t.Helper()
	p, err := policyyaml.LoadPolicy(examplePath(t, "gate.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func envelope(statement, sigs string) []byte {
	return []byte(`{"payloadType":"application/vnd.in-toto+json","payload":"` +
		base64.StdEncoding.EncodeToString([]byte(statement)) +
		`","signatures":` + sigs + `}`)
}

// startRegistry runs an in-memory OCI registry and returns its host:port.
func startRegistry(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(registry.New())
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}
