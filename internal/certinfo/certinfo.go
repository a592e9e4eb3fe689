// Package certinfo extracts display fields from X.509 certificates found in
// attestation documents.
package certinfo

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const unknown = "Unknown"

// Info is the display record for one certificate.
type Info struct {
	Index              int    `json:"index"`
	Subject            string `json:"subject"`
	Issuer             string `json:"issuer"`
	NotBefore          string `json:"notBefore"`
	NotAfter           string `json:"notAfter"`
	IsValid            bool   `json:"isValid"`
	KeyAlgorithm       string `json:"keyAlgorithm"`
	KeySize            string `json:"keySize"`
	SignatureAlgorithm string `json:"signatureAlgorithm"`
	SerialNumber       string `json:"serialNumber"`
}

// Parser parses certificates. The zero value is usable.
type Parser struct {
	Logger *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Parse decodes a Base64 DER or PEM certificate. Any failure yields the
// fallback record rather than an error.
func (p Parser) Parse(encoded string, index int) Info {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cert, err := decode(encoded)
	if err != nil {
		logger.Debug("certificate parse failed", zap.Int("index", index), zap.Error(err))
		return Fallback(index)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	ts := now()
	return Info{
		Index:              index,
		Subject:            nameOrEmpty(cert.Subject.String()),
		Issuer:             nameOrEmpty(cert.Issuer.String()),
		NotBefore:          cert.NotBefore.UTC().Format(time.RFC3339),
		NotAfter:           cert.NotAfter.UTC().Format(time.RFC3339),
		IsValid:            !ts.Before(cert.NotBefore) && !ts.After(cert.NotAfter),
		KeyAlgorithm:       cert.PublicKeyAlgorithm.String(),
		KeySize:            keySize(cert),
		SignatureAlgorithm: cert.SignatureAlgorithm.String(),
		SerialNumber:       hex.EncodeToString(cert.SerialNumber.Bytes()),
	}
}

// ParseAll parses each certificate, indexing from zero.
func (p Parser) ParseAll(encoded []string) []Info {
	out := make([]Info, 0, len(encoded))
	for i, c := range encoded {
		out = append(out, p.Parse(c, i))
	}
	return out
}

// Parse uses a zero Parser.
func Parse(encoded string, index int) Info {
	return Parser{}.Parse(encoded, index)
}

// Fallback is the record returned when a certificate cannot be parsed.
func Fallback(index int) Info {
	return Info{
		Index:              index,
		Subject:            "Error parsing certificate",
		Issuer:             unknown,
		NotBefore:          unknown,
		NotAfter:           unknown,
		IsValid:            false,
		KeyAlgorithm:       unknown,
		KeySize:            unknown,
		SignatureAlgorithm: unknown,
		SerialNumber:       unknown,
	}
}

func decode(encoded string) (*x509.Certificate, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("empty certificate")
	}
	var der []byte
	if block, _ := pem.Decode([]byte(encoded)); block != nil {
		der = block.Bytes
	} else {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("decode certificate base64: %w", err)
		}
		// A Base64-wrapped PEM document is common in Sigstore material.
		if block, _ := pem.Decode(raw); block != nil {
			raw = block.Bytes
		}
		der = raw
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}

func keySize(cert *x509.Certificate) string {
	switch pub := cert.PublicKey.(type) {
	case *rsa.PublicKey:
		return strconv.Itoa(pub.N.BitLen())
	case *ecdsa.PublicKey:
		return pub.Curve.Params().Name
	default:
		return unknown
	}
}

func nameOrEmpty(s string) string {
	if s == "" {
		return "Empty Name"
	}
	return s
}
