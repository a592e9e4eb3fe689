package types

// In-toto statement type URIs recognized by attestview.
const (
	StatementV01 = "https://in-toto.io/Statement/v0.1"
	StatementV1  = "https://in-toto.io/Statement/v1"
)

const (
	PayloadTypeInToto = "application/vnd.in-toto+json"

	// SigstoreBundleMarker is the substring every Sigstore bundle media
	// type carries, e.g. application/vnd.dev.sigstore.bundle+json;version=0.1
	// or application/vnd.dev.sigstore.bundle.v0.3+json.
	SigstoreBundleMarker = "sigstore.bundle"

	SigstoreBundleV01 = "application/vnd.dev.sigstore.bundle+json;version=0.1"
	SigstoreBundleV03 = "application/vnd.dev.sigstore.bundle.v0.3+json"
)

// Statement is an in-toto attestation statement.
type Statement struct {
	Type          string    `json:"_type"`
	Subject       []Subject `json:"subject"`
	PredicateType string    `json:"predicateType"`
	Predicate     any       `json:"predicate"`
}

// Subject names an artifact by content digest. Digest maps algorithm name
// to hex digest.
type Subject struct {
	Name   string            `json:"name,omitempty"`
	Digest map[string]string `json:"digest,omitempty"`
}

// Envelope is a DSSE envelope.
type Envelope struct {
	PayloadType string      `json:"payloadType"`
	Payload     string      `json:"payload"`
	Signatures  []Signature `json:"signatures"`
}

type Signature struct {
	KeyID string `json:"keyid,omitempty"`
	Sig   string `json:"sig"`
	Cert  string `json:"cert,omitempty"`
}

// Bundle is the subset of a Sigstore bundle that attestview inspects.
type Bundle struct {
	MediaType            string               `json:"mediaType"`
	VerificationMaterial VerificationMaterial `json:"verificationMaterial"`
	TlogEntries          []TlogEntry          `json:"tlogEntries,omitempty"`
	DSSEEnvelope         *Envelope            `json:"dsseEnvelope,omitempty"`
}

type VerificationMaterial struct {
	X509CertificateChain *CertificateChain `json:"x509CertificateChain,omitempty"`
	Certificate          *Certificate      `json:"certificate,omitempty"`
}

type CertificateChain struct {
	Certificates []Certificate `json:"certificates"`
}

// Certificate holds a Base64 DER certificate.
type Certificate struct {
	RawBytes string `json:"rawBytes"`
}

type TlogEntry struct {
	LogIndex       string `json:"logIndex"`
	IntegratedTime string `json:"integratedTime"`
}
