package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/attestview/internal/inspect"
	"github.com/ogulcanaydogan/attestview/internal/jsontree"
)

// BuildYAML renders r as YAML with the same field and key order as the
// JSON form.
func BuildYAML(r inspect.Report) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	tree, err := jsontree.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("reparse report: %w", err)
	}
	var b strings.Builder
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(toNode(tree)); err != nil {
		return nil, fmt.Errorf("encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func toNode(v any) *yaml.Node {
	switch vv := v.(type) {
	case *jsontree.Object:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, k := range vv.Keys() {
			child, _ := vv.Get(k)
			n.Content = append(n.Content, scalar("!!str", k), toNode(child))
		}
		return n
	case []any:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range vv {
			n.Content = append(n.Content, toNode(item))
		}
		return n
	case string:
		n := scalar("!!str", vv)
		if strings.Contains(vv, "\n") {
			n.Style = yaml.LiteralStyle
		}
		return n
	case json.Number:
		if _, err := vv.Int64(); err == nil {
			return scalar("!!int", vv.String())
		}
		return scalar("!!float", vv.String())
	case bool:
		if vv {
			return scalar("!!bool", "true")
		}
		return scalar("!!bool", "false")
	default:
		return scalar("!!null", "null")
	}
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}
