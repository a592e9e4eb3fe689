// Package normalize unwraps encoded payloads nested inside a JSON document.
//
// Every string leaf is probed for JSON text, Base64 and Unix epoch
// timestamps; decoded values are substituted in place and walked again, so a
// Base64 string holding JSON that holds another timestamp comes out fully
// expanded. Each substitution is logged with the path it happened at and the
// exact text it replaced.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ogulcanaydogan/attestview/internal/jsontree"
	"github.com/ogulcanaydogan/attestview/internal/probe"
)

// DefaultMaxDepth bounds container nesting plus decode chaining.
const DefaultMaxDepth = 64

// Kind names the decode chain applied at a path.
type Kind string

const (
	KindJSON        Kind = "JSON"
	KindBase64      Kind = "Base64"
	KindEpoch       Kind = "Epoch"
	KindBase64JSON  Kind = "Base64->JSON"
	KindBase64Epoch Kind = "Base64->Epoch"
)

// NodeID identifies a composite value produced by a substitution. IDs are
// only meaningful within the Result that issued them.
type NodeID int

// Record is one entry of the transformation log.
type Record struct {
	Path          string `json:"path"`
	Kind          Kind   `json:"kind"`
	OriginalValue string `json:"originalValue"`
	Node          NodeID `json:"node,omitempty"`
}

// Result is the output of one Normalize call.
type Result struct {
	Tree any
	Log  []Record
	// Annotations maps a tree path to the outermost composite substitution
	// made there.
	Annotations map[string]NodeID

	originals map[NodeID]string
}

// OriginalOf returns the encoded string that the composite value at path
// replaced.
func (r Result) OriginalOf(path string) (string, bool) {
	id, ok := r.Annotations[path]
	if !ok {
		return "", false
	}
	return r.Original(id)
}

// Original returns the encoded string recorded for id.
func (r Result) Original(id NodeID) (string, bool) {
	s, ok := r.originals[id]
	return s, ok
}

type options struct {
	logger   *zap.Logger
	maxDepth int
}

type Option func(*options)

// WithLogger sets the logger used for debug output about skipped decodes.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDepth = n
		}
	}
}

// Normalize walks v depth-first and returns the decoded tree together with
// the transformation log. v must be a jsontree value; the input is never
// modified. Normalize holds no state between calls and is safe for
// concurrent use.
func Normalize(v any, opts ...Option) Result {
	o := options{logger: zap.NewNop(), maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	w := &walker{
		opts:        o,
		log:         []Record{},
		annotations: map[string]NodeID{},
		originals:   map[NodeID]string{},
	}
	tree := w.value(v, "", 0)
	return Result{
		Tree:        tree,
		Log:         w.log,
		Annotations: w.annotations,
		originals:   w.originals,
	}
}

type walker struct {
	opts        options
	log         []Record
	annotations map[string]NodeID
	originals   map[NodeID]string
	lastID      NodeID
}

func (w *walker) value(v any, path string, depth int) any {
	if depth > w.opts.maxDepth {
		w.opts.logger.Debug("max depth reached, leaving value unchanged", zap.String("path", path), zap.Int("depth", depth))
		return v
	}
	switch vv := v.(type) {
	case *jsontree.Object:
		out := jsontree.NewObject()
		for _, k := range vv.Keys() {
			child, _ := vv.Get(k)
			out.Set(k, w.value(child, fieldPath(path, k), depth+1))
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, item := range vv {
			out[i] = w.value(item, indexPath(path, i), depth+1)
		}
		return out
	case json.Number:
		if ts, ok := probe.EpochTime(probe.NumberText(vv)); ok {
			w.append(Record{Path: path, Kind: KindEpoch, OriginalValue: vv.String()})
			return probe.FormatEpoch(ts)
		}
		return vv
	case string:
		out, _, _ := w.leaf(vv, path, depth, false)
		return out
	default:
		return v
	}
}

// leaf applies the per-string decision list. In chained mode the caller
// owns the log entry for this path, so nothing is appended here; the kind
// of the decode that matched is returned so the caller can name the chain.
func (w *walker) leaf(s, path string, depth int, chained bool) (any, Kind, bool) {
	if ts, ok := probe.EpochTime(s); ok {
		if !chained {
			w.append(Record{Path: path, Kind: KindEpoch, OriginalValue: s})
		}
		return probe.FormatEpoch(ts), KindEpoch, true
	}

	if probe.IsJSONText(s) {
		if depth >= w.opts.maxDepth {
			w.opts.logger.Debug("max depth reached, not parsing JSON text", zap.String("path", path))
			return s, "", false
		}
		parsed, err := jsontree.ParseString(s)
		if err != nil {
			w.opts.logger.Debug("json text failed to parse", zap.String("path", path), zap.Error(err))
		} else {
			slot := -1
			if !chained {
				slot = w.append(Record{Path: path, Kind: KindJSON, OriginalValue: s})
			}
			out, kind := w.parsedText(parsed, path, depth+1, chained)
			if slot >= 0 {
				w.annotate(slot, out)
			}
			return out, kind, true
		}
	}

	if probe.IsBase64(s) {
		if depth >= w.opts.maxDepth {
			w.opts.logger.Debug("max depth reached, not decoding base64", zap.String("path", path))
			return s, "", false
		}
		raw, err := probe.DecodeBase64(s)
		if err != nil {
			w.opts.logger.Debug("base64 failed to decode", zap.String("path", path), zap.Error(err))
			return s, "", false
		}
		decoded := strings.TrimSpace(string(raw))
		if !probe.IsReadableText(decoded) {
			return s, "", false
		}
		slot := -1
		if !chained {
			slot = w.append(Record{Path: path, Kind: KindBase64, OriginalValue: s})
		}
		out, inner, changed := w.leaf(decoded, path, depth+1, true)
		kind := KindBase64
		if changed {
			switch inner {
			case KindJSON, KindBase64JSON:
				kind = KindBase64JSON
			case KindEpoch, KindBase64Epoch:
				kind = KindBase64Epoch
			}
		}
		if slot >= 0 {
			w.log[slot].Kind = kind
			w.annotate(slot, out)
		}
		return out, kind, true
	}

	return s, "", false
}

// parsedText walks the value parsed from JSON text. Inside a chain a
// scalar result is decoded without logging, since the chain owns the single
// record for this path; a chain that ends in a timestamp reports KindEpoch.
func (w *walker) parsedText(parsed any, path string, depth int, chained bool) (any, Kind) {
	if !chained || jsontree.IsComposite(parsed) {
		return w.value(parsed, path, depth), KindJSON
	}
	switch pv := parsed.(type) {
	case string:
		if depth > w.opts.maxDepth {
			return pv, KindJSON
		}
		out, inner, changed := w.leaf(pv, path, depth, true)
		if changed && (inner == KindEpoch || inner == KindBase64Epoch) {
			return out, KindEpoch
		}
		return out, KindJSON
	case json.Number:
		if ts, ok := probe.EpochTime(probe.NumberText(pv)); ok {
			return probe.FormatEpoch(ts), KindEpoch
		}
	}
	return parsed, KindJSON
}

// append adds rec to the log and returns its index. Records are appended
// before the decoded value is walked so the log stays in pre-order.
func (w *walker) append(rec Record) int {
	w.log = append(w.log, rec)
	return len(w.log) - 1
}

// annotate registers a composite substitution for the record at slot.
// Outer decodes finish after inner ones at the same path, so the last
// write is the outermost substitution.
func (w *walker) annotate(slot int, out any) {
	if !jsontree.IsComposite(out) {
		return
	}
	w.lastID++
	id := w.lastID
	rec := &w.log[slot]
	rec.Node = id
	w.originals[id] = rec.OriginalValue
	w.annotations[rec.Path] = id
}

func fieldPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func indexPath(parent string, i int) string {
	return parent + "[" + strconv.Itoa(i) + "]"
}
