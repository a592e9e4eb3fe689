package rego

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	oparego "github.com/open-policy-agent/opa/rego"

	"github.com/ogulcanaydogan/attestview/internal/inspect"
	"github.com/ogulcanaydogan/attestview/internal/normalize"
	"github.com/ogulcanaydogan/attestview/internal/policy/yaml"
)

// Query is the rule a gate policy must define.
const Query = "data.attestview.gate.result"

type Input struct {
	Pattern         string             `json:"pattern"`
	PredicateType   string             `json:"predicate_type"`
	Transformations []normalize.Record `json:"transformations"`
	SchemaErrors    []string           `json:"schema_errors"`
	Paths           []string           `json:"paths"`
	Policy          yaml.Policy        `json:"policy"`
}

type Result struct {
	Allow      bool     `json:"allow"`
	Violations []string `json:"violations"`
}

// BuildInput assembles the policy input for r. policy may be the zero
// value when the Rego module carries all of its own rules.
func BuildInput(policy yaml.Policy, r inspect.Report) Input {
	view := yaml.View(r)
	transformations := r.Transformations
	if transformations == nil {
		transformations = []normalize.Record{}
	}
	return Input{
		Pattern:         view.Pattern,
		PredicateType:   view.PredicateType,
		Transformations: transformations,
		SchemaErrors:    view.SchemaErrors,
		Paths:           view.Paths,
		Policy:          policy,
	}
}

func Evaluate(ctx context.Context, policyPath string, input Input) (Result, error) {
	raw, err := os.ReadFile(policyPath)
	if err != nil {
		return Result{}, fmt.Errorf("read rego policy: %w", err)
	}

	query, err := oparego.New(
		oparego.Query(Query),
		oparego.Module(filepath.Base(policyPath), string(raw)),
		oparego.Input(input),
	).PrepareForEval(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("prepare rego query: %w", err)
	}

	rs, err := query.Eval(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("eval rego policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Result{}, fmt.Errorf("rego policy returned no result")
	}

	out, err := decodeResult(rs[0].Expressions[0].Value)
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

func decodeResult(v any) (Result, error) {
	obj, ok := v.(map[string]any)
	if !ok {
		return Result{}, fmt.Errorf("rego result must be object")
	}
	allow, _ := obj["allow"].(bool)
	violations := decodeViolations(obj["violations"])
	sort.Strings(violations)
	return Result{Allow: allow, Violations: violations}, nil
}

func decodeViolations(v any) []string {
	out := []string{}
	switch raw := v.(type) {
	case []any:
		for _, item := range raw {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case map[string]any:
		for key := range raw {
			if key != "" {
				out = append(out, key)
			}
		}
	case map[any]any:
		for key := range raw {
			if s, ok := key.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
