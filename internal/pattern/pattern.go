// Package pattern classifies a JSON document as one of the supply-chain
// envelope shapes attestview knows about and pulls out display metadata.
package pattern

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ogulcanaydogan/attestview/internal/jsontree"
	"github.com/ogulcanaydogan/attestview/pkg/types"
)

type Type string

const (
	TypeDSSE     Type = "DSSE"
	TypeSigstore Type = "SIGSTORE"
	TypeInToto   Type = "INTOTO"
	TypeUnknown  Type = "UNKNOWN"
)

const (
	ConfidenceEnvelope  = 0.9
	ConfidenceStatement = 0.95
)

// Result is the classification of one document.
type Result struct {
	Type       Type     `json:"type"`
	Confidence float64  `json:"confidence"`
	Metadata   Metadata `json:"metadata"`
}

// Metadata is implemented by the per-shape metadata records.
type Metadata interface {
	PatternType() Type
}

type SignatureInfo struct {
	KeyID   string `json:"keyid,omitempty"`
	HasCert bool   `json:"hasCert"`
}

type DSSEMetadata struct {
	PayloadType    string          `json:"payloadType"`
	SignatureCount int             `json:"signatureCount"`
	Signatures     []SignatureInfo `json:"signatures"`

	// Filled from the payload when it decodes to an in-toto statement.
	StatementType string `json:"statementType,omitempty"`
	PredicateType string `json:"predicateType,omitempty"`
	SubjectName   string `json:"subjectName,omitempty"`
	Digest        string `json:"digest,omitempty"`
	Predicate     any    `json:"predicate,omitempty"`
}

func (DSSEMetadata) PatternType() Type { return TypeDSSE }

type SigstoreMetadata struct {
	MediaType               string `json:"mediaType"`
	TlogEntryCount          int    `json:"tlogEntryCount"`
	HasCertificateChain     bool   `json:"hasCertificateChain"`
	HasRekorEntry           bool   `json:"hasRekorEntry"`
	HasBundle               bool   `json:"hasBundle"`
	HasProducts             bool   `json:"hasProducts"`
	HasTimestamp            bool   `json:"hasTimestamp"`
	HasVerificationMaterial bool   `json:"hasVerificationMaterial"`
}

func (SigstoreMetadata) PatternType() Type { return TypeSigstore }

type InTotoMetadata struct {
	StatementType string `json:"statementType"`
	SubjectCount  int    `json:"subjectCount"`
	PredicateType string `json:"predicateType"`
	Predicate     any    `json:"predicate"`
	SubjectName   string `json:"subjectName,omitempty"`
	Digest        string `json:"digest,omitempty"`
}

func (InTotoMetadata) PatternType() Type { return TypeInToto }

type UnknownMetadata struct{}

func (UnknownMetadata) PatternType() Type { return TypeUnknown }

type options struct {
	logger *zap.Logger
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Recognize classifies v. The checks run in a fixed order (DSSE, Sigstore
// bundle, in-toto statement) and the first match wins, so the outermost
// envelope decides the type. Every call returns a fresh Result.
func Recognize(v any, opts ...Option) Result {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	obj, ok := v.(*jsontree.Object)
	if !ok {
		return unknown()
	}
	if md, ok := recognizeDSSE(obj, o.logger); ok {
		return Result{Type: TypeDSSE, Confidence: ConfidenceEnvelope, Metadata: md}
	}
	if md, ok := recognizeSigstore(obj); ok {
		return Result{Type: TypeSigstore, Confidence: ConfidenceEnvelope, Metadata: md}
	}
	if IsInTotoStatement(obj) {
		return Result{Type: TypeInToto, Confidence: ConfidenceStatement, Metadata: inTotoMetadata(obj)}
	}
	return unknown()
}

func unknown() Result {
	return Result{Type: TypeUnknown, Confidence: 0, Metadata: UnknownMetadata{}}
}

func recognizeDSSE(obj *jsontree.Object, logger *zap.Logger) (DSSEMetadata, bool) {
	payload := stringField(obj, "payload")
	payloadType := stringField(obj, "payloadType")
	rawSigs, _ := field(obj, "signatures").([]any)
	if payload == "" || payloadType == "" || rawSigs == nil {
		return DSSEMetadata{}, false
	}

	md := DSSEMetadata{
		PayloadType:    payloadType,
		SignatureCount: len(rawSigs),
		Signatures:     make([]SignatureInfo, 0, len(rawSigs)),
	}
	for _, item := range rawSigs {
		sig, _ := item.(*jsontree.Object)
		md.Signatures = append(md.Signatures, SignatureInfo{
			KeyID:   stringField(sig, "keyid"),
			HasCert: truthy(field(sig, "cert")),
		})
	}

	statement, err := decodeStatement(payload)
	if err != nil {
		logger.Debug("dsse payload is not an in-toto statement", zap.Error(err))
		return md, true
	}
	md.StatementType = stringField(statement, "_type")
	md.PredicateType = stringField(statement, "predicateType")
	if first := firstSubject(statement); first != nil {
		md.Digest = firstDigest(first)
		md.SubjectName = stringField(first, "name")
	}
	if pred := field(statement, "predicate"); truthy(pred) {
		md.Predicate = pred
	}
	return md, true
}

// decodeStatement decodes a DSSE payload and returns it if it is an in-toto
// statement. DSSE allows both standard and URL-safe Base64, and padding is
// optional.
func decodeStatement(payload string) (*jsontree.Object, error) {
	trimmed := strings.TrimRight(payload, "=")
	raw, err := base64.RawStdEncoding.DecodeString(trimmed)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("payload is not valid UTF-8")
	}
	v, err := jsontree.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	obj, ok := v.(*jsontree.Object)
	if !ok || !IsInTotoStatement(obj) {
		return nil, fmt.Errorf("payload is not an in-toto statement")
	}
	return obj, nil
}

func recognizeSigstore(obj *jsontree.Object) (SigstoreMetadata, bool) {
	mediaType := stringField(obj, "mediaType")
	if !strings.Contains(mediaType, types.SigstoreBundleMarker) {
		return SigstoreMetadata{}, false
	}
	tlog, _ := field(obj, "tlogEntries").([]any)
	material, _ := field(obj, "verificationMaterial").(*jsontree.Object)
	return SigstoreMetadata{
		MediaType:               mediaType,
		TlogEntryCount:          len(tlog),
		HasCertificateChain:     truthy(field(material, "x509CertificateChain")),
		HasRekorEntry:           len(tlog) > 0,
		HasBundle:               true,
		HasProducts:             truthy(field(material, "products")),
		HasTimestamp:            truthy(field(material, "timestampVerificationData")),
		HasVerificationMaterial: truthy(field(obj, "verificationMaterial")),
	}, true
}

// IsInTotoStatement reports whether obj has the in-toto statement shape.
func IsInTotoStatement(obj *jsontree.Object) bool {
	switch stringField(obj, "_type") {
	case types.StatementV01, types.StatementV1:
	default:
		return false
	}
	if _, ok := field(obj, "subject").([]any); !ok {
		return false
	}
	if _, ok := field(obj, "predicateType").(string); !ok {
		return false
	}
	_, ok := field(obj, "predicate").(*jsontree.Object)
	return ok
}

func inTotoMetadata(obj *jsontree.Object) InTotoMetadata {
	subjects, _ := field(obj, "subject").([]any)
	md := InTotoMetadata{
		StatementType: stringField(obj, "_type"),
		SubjectCount:  len(subjects),
		PredicateType: stringField(obj, "predicateType"),
		Predicate:     field(obj, "predicate"),
	}
	if first := firstSubject(obj); first != nil {
		md.SubjectName = stringField(first, "name")
		md.Digest = firstDigest(first)
	}
	return md
}

func firstSubject(statement *jsontree.Object) *jsontree.Object {
	subjects, _ := field(statement, "subject").([]any)
	if len(subjects) == 0 {
		return nil
	}
	first, _ := subjects[0].(*jsontree.Object)
	return first
}

// firstDigest returns the first algorithm entry of subject.digest in
// document order.
func firstDigest(subject *jsontree.Object) string {
	digest, _ := field(subject, "digest").(*jsontree.Object)
	if digest.Len() == 0 {
		return ""
	}
	v, _ := digest.Get(digest.Keys()[0])
	switch vv := v.(type) {
	case string:
		return vv
	case nil:
		return ""
	default:
		raw, err := jsontree.Marshal(vv)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}

func field(obj *jsontree.Object, key string) any {
	v, _ := obj.Get(key)
	return v
}

func stringField(obj *jsontree.Object, key string) string {
	s, _ := field(obj, key).(string)
	return s
}

// truthy follows JavaScript truthiness for JSON values: null, false, "" and
// zero are false, everything else (including empty objects) is true.
func truthy(v any) bool {
	switch vv := v.(type) {
	case nil:
		return false
	case bool:
		return vv
	case string:
		return vv != ""
	case json.Number:
		f, err := vv.Float64()
		return err == nil && f != 0
	case *jsontree.Object:
		return vv != nil
	default:
		return true
	}
}
