package report

import (
	"bytes"
	"encoding/json"

	"github.com/ogulcanaydogan/attestview/internal/inspect"
)

func BuildJSON(r inspect.Report) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
