// Package inspect runs the full analysis of one document: parse, unwrap
// nested encodings, classify, and optionally check schema and certificates.
package inspect

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ogulcanaydogan/attestview/internal/certinfo"
	"github.com/ogulcanaydogan/attestview/internal/hash"
	"github.com/ogulcanaydogan/attestview/internal/jsontree"
	"github.com/ogulcanaydogan/attestview/internal/normalize"
	"github.com/ogulcanaydogan/attestview/internal/pattern"
	"github.com/ogulcanaydogan/attestview/pkg/schema"
)

// ErrInvalidJSON is returned when the input does not parse. The message is
// shown to users as is.
var ErrInvalidJSON = errors.New("Invalid JSON format")

type Options struct {
	// JSONC accepts comments and trailing commas.
	JSONC       bool
	MaxDepth    int
	SchemaCheck bool
	// SchemaPath validates against a schema file instead of the built-in
	// schema for the detected type. It must be absolute.
	SchemaPath   string
	Certificates bool
	Logger       *zap.Logger
	// Now is the clock for certificate validity. Defaults to time.Now.
	Now func() time.Time
}

// Report is the outcome of one inspection.
type Report struct {
	InputDigest     string             `json:"inputDigest"`
	TreeDigest      string             `json:"treeDigest,omitempty"`
	Pattern         pattern.Result     `json:"pattern"`
	Transformations []normalize.Record `json:"transformations"`
	Tree            any                `json:"tree"`
	SchemaErrors    []string           `json:"schemaErrors,omitempty"`
	Certificates    []certinfo.Info    `json:"certificates,omitempty"`

	normalized normalize.Result
}

// OriginalOf returns the encoded text that the decoded value at path
// replaced.
func (r Report) OriginalOf(path string) (string, bool) {
	return r.normalized.OriginalOf(path)
}

// Run inspects raw. On a parse failure the error wraps ErrInvalidJSON and
// no partial report is returned.
func Run(raw []byte, opts Options) (Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	parse := jsontree.Parse
	if opts.JSONC {
		parse = jsontree.ParseJSONC
	}
	doc, err := parse(raw)
	if err != nil {
		logger.Debug("input rejected", zap.Error(err))
		return Report{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	normOpts := []normalize.Option{normalize.WithLogger(logger)}
	if opts.MaxDepth > 0 {
		normOpts = append(normOpts, normalize.WithMaxDepth(opts.MaxDepth))
	}
	norm := normalize.Normalize(doc, normOpts...)
	result := pattern.Recognize(doc, pattern.WithLogger(logger))

	// Numbers outside float64 range have no canonical form; such a tree is
	// reported without a digest.
	treeDigest, _, err := hash.HashCanonicalJSON(norm.Tree)
	if err != nil {
		logger.Warn("normalized tree has no canonical digest", zap.Error(err))
		treeDigest = ""
	}

	rep := Report{
		InputDigest:     hash.DigestBytes(raw),
		TreeDigest:      treeDigest,
		Pattern:         result,
		Transformations: norm.Log,
		Tree:            norm.Tree,
		normalized:      norm,
	}

	if opts.SchemaPath != "" {
		errs, err := schema.Validate(opts.SchemaPath, jsontree.Plain(doc))
		if err != nil {
			return Report{}, fmt.Errorf("schema check: %w", err)
		}
		rep.SchemaErrors = errs
	} else if opts.SchemaCheck {
		if name, ok := SchemaFor(result.Type); ok {
			errs, err := schema.ValidateBuiltin(name, jsontree.Plain(doc))
			if err != nil {
				return Report{}, fmt.Errorf("schema check: %w", err)
			}
			rep.SchemaErrors = errs
		}
	}

	if opts.Certificates {
		parser := certinfo.Parser{Logger: logger, Now: opts.Now}
		rep.Certificates = parser.ParseAll(Certificates(doc))
	}

	logger.Debug("inspected document",
		zap.String("pattern", string(result.Type)),
		zap.Int("transformations", len(norm.Log)),
		zap.String("tree_digest", treeDigest),
	)
	return rep, nil
}

// SchemaFor maps a recognized type to its built-in schema.
func SchemaFor(t pattern.Type) (string, bool) {
	switch t {
	case pattern.TypeDSSE:
		return schema.DSSE, true
	case pattern.TypeInToto:
		return schema.InToto, true
	case pattern.TypeSigstore:
		return schema.Sigstore, true
	default:
		return "", false
	}
}

// Certificates collects the encoded certificates carried by a document:
// DSSE signature certs and Sigstore verification material, including the
// signatures of a bundled DSSE envelope.
func Certificates(doc any) []string {
	obj, ok := doc.(*jsontree.Object)
	if !ok {
		return nil
	}
	var out []string
	out = appendSignatureCerts(out, obj)
	if env, ok := get(obj, "dsseEnvelope").(*jsontree.Object); ok {
		out = appendSignatureCerts(out, env)
	}

	material, _ := get(obj, "verificationMaterial").(*jsontree.Object)
	if chain, ok := get(material, "x509CertificateChain").(*jsontree.Object); ok {
		certs, _ := get(chain, "certificates").([]any)
		for _, c := range certs {
			cert, _ := c.(*jsontree.Object)
			if s, ok := get(cert, "rawBytes").(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if cert, ok := get(material, "certificate").(*jsontree.Object); ok {
		if s, ok := get(cert, "rawBytes").(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func appendSignatureCerts(out []string, obj *jsontree.Object) []string {
	sigs, _ := get(obj, "signatures").([]any)
	for _, item := range sigs {
		sig, _ := item.(*jsontree.Object)
		if s, ok := get(sig, "cert").(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func get(obj *jsontree.Object, key string) any {
	v, _ := obj.Get(key)
	return v
}
