package report

import (
	"fmt"

	"github.com/ogulcanaydogan/attestview/internal/inspect"
	"github.com/ogulcanaydogan/attestview/internal/store"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "md"
	FormatYAML     Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch s {
	case "json", "":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want json, md or yaml)", s)
	}
}

// Build renders r in format f.
func Build(f Format, r inspect.Report) ([]byte, error) {
	switch f {
	case FormatJSON:
		return BuildJSON(r)
	case FormatMarkdown:
		return []byte(BuildMarkdown(r)), nil
	case FormatYAML:
		return BuildYAML(r)
	default:
		return nil, fmt.Errorf("unknown report format %q", f)
	}
}

// Write renders r and saves it to path.
func Write(path string, f Format, r inspect.Report) error {
	raw, err := Build(f, r)
	if err != nil {
		return err
	}
	return store.WriteFile(path, raw)
}
