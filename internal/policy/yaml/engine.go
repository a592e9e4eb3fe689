// Package yaml evaluates declarative gate policies against an inspection
// report.
package yaml

import (
	"fmt"
	"os"
	"sort"
	"strings"

	goyaml "gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/attestview/internal/inspect"
	"github.com/ogulcanaydogan/attestview/internal/jsontree"
	"github.com/ogulcanaydogan/attestview/internal/pattern"
)

const SchemaViolationMessage = "Document does not match its schema."

type Policy struct {
	Version            string   `yaml:"version" json:"version"`
	AllowedPatterns    []string `yaml:"allowed_patterns" json:"allowed_patterns"`
	RequireSchemaValid bool     `yaml:"require_schema_valid" json:"require_schema_valid"`
	Gates              []Gate   `yaml:"gates" json:"gates"`
}

// Gate requires fields to be present in the normalized document whenever
// the document's predicate type matches one of TriggerPredicates. A gate
// without triggers applies to every document.
type Gate struct {
	ID                string   `yaml:"id" json:"id"`
	TriggerPredicates []string `yaml:"trigger_predicates" json:"trigger_predicates"`
	RequiredFields    []string `yaml:"required_fields" json:"required_fields"`
	Message           string   `yaml:"message" json:"message"`
}

// DocumentView is the part of a report that policies look at.
type DocumentView struct {
	Pattern       string
	PredicateType string
	SchemaErrors  []string
	Paths         []string
}

func LoadPolicy(path string) (Policy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}
	var p Policy
	if err := goyaml.Unmarshal(raw, &p); err != nil {
		return Policy{}, fmt.Errorf("parse policy %s: %w", path, err)
	}
	return p.withDefaults(), nil
}

// withDefaults replaces nil lists with empty ones so the policy reads the
// same to Rego as it does here.
func (p Policy) withDefaults() Policy {
	if p.AllowedPatterns == nil {
		p.AllowedPatterns = []string{}
	}
	gates := make([]Gate, 0, len(p.Gates))
	for _, g := range p.Gates {
		if g.TriggerPredicates == nil {
			g.TriggerPredicates = []string{}
		}
		if g.RequiredFields == nil {
			g.RequiredFields = []string{}
		}
		gates = append(gates, g)
	}
	p.Gates = gates
	return p
}

// View extracts the policy-relevant facts from r.
func View(r inspect.Report) DocumentView {
	v := DocumentView{
		Pattern:      string(r.Pattern.Type),
		SchemaErrors: append([]string{}, r.SchemaErrors...),
		Paths:        Paths(r.Tree),
	}
	switch md := r.Pattern.Metadata.(type) {
	case pattern.DSSEMetadata:
		v.PredicateType = md.PredicateType
	case pattern.InTotoMetadata:
		v.PredicateType = md.PredicateType
	}
	return v
}

// Paths lists every path in tree, sorted.
func Paths(tree any) []string {
	out := []string{}
	var walk func(v any, path string)
	walk = func(v any, path string) {
		if path != "" {
			out = append(out, path)
		}
		switch vv := v.(type) {
		case *jsontree.Object:
			for _, k := range vv.Keys() {
				child, _ := vv.Get(k)
				next := k
				if path != "" {
					next = path + "." + k
				}
				walk(child, next)
			}
		case []any:
			for i, item := range vv {
				walk(item, fmt.Sprintf("%s[%d]", path, i))
			}
		}
	}
	walk(tree, "")
	sort.Strings(out)
	return out
}

// Evaluate returns the sorted violations of doc against policy. A
// disallowed pattern is reported on its own.
func Evaluate(policy Policy, doc DocumentView) []string {
	if len(policy.AllowedPatterns) > 0 && !contains(policy.AllowedPatterns, doc.Pattern) {
		return []string{fmt.Sprintf("Pattern %s is not allowed by policy.", doc.Pattern)}
	}

	violations := make([]string, 0)
	if policy.RequireSchemaValid && len(doc.SchemaErrors) > 0 {
		violations = append(violations, SchemaViolationMessage)
	}
	present := make(map[string]struct{}, len(doc.Paths))
	for _, p := range doc.Paths {
		present[p] = struct{}{}
	}
	for _, gate := range policy.Gates {
		if !triggered(doc.PredicateType, gate.TriggerPredicates) {
			continue
		}
		missing := make([]string, 0)
		for _, req := range gate.RequiredFields {
			if _, ok := present[req]; !ok {
				missing = append(missing, req)
			}
		}
		if len(missing) > 0 {
			msg := gate.Message
			if msg == "" {
				msg = fmt.Sprintf("%s missing fields: %s", gate.ID, strings.Join(missing, ", "))
			}
			violations = append(violations, msg)
		}
	}
	sort.Strings(violations)
	return dedupe(violations)
}

func triggered(predicateType string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if match(predicateType, p) {
			return true
		}
	}
	return false
}

// match supports "*", a "/**" suffix for everything under a prefix, and
// exact comparison.
func match(value, pattern string) bool {
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return strings.HasPrefix(value, prefix+"/") || value == prefix
	}
	return value == pattern
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
