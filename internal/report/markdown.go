package report

import (
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/attestview/internal/inspect"
	"github.com/ogulcanaydogan/attestview/internal/pattern"
)

const maxCellLen = 60

func BuildMarkdown(r inspect.Report) string {
	var b strings.Builder
	b.WriteString("# Attestation Inspection Report\n\n")
	b.WriteString(fmt.Sprintf("- Pattern: **%s**\n", r.Pattern.Type))
	b.WriteString(fmt.Sprintf("- Confidence: `%g`\n", r.Pattern.Confidence))
	b.WriteString(fmt.Sprintf("- Input Digest: `%s`\n", r.InputDigest))
	if r.TreeDigest != "" {
		b.WriteString(fmt.Sprintf("- Normalized Digest: `%s`\n", r.TreeDigest))
	}
	b.WriteString(fmt.Sprintf("- Transformations: `%d`\n", len(r.Transformations)))

	if rows := metadataRows(r.Pattern.Metadata); len(rows) > 0 {
		b.WriteString("\n## Metadata\n\n")
		b.WriteString("| Field | Value |\n")
		b.WriteString("|---|---|\n")
		for _, row := range rows {
			b.WriteString(fmt.Sprintf("| %s | %s |\n", row[0], cell(row[1])))
		}
	}

	if len(r.Transformations) > 0 {
		b.WriteString("\n## Transformations\n\n")
		b.WriteString("| Path | Kind | Original Value |\n")
		b.WriteString("|---|---|---|\n")
		for _, t := range r.Transformations {
			path := t.Path
			if path == "" {
				path = "(root)"
			}
			b.WriteString(fmt.Sprintf("| `%s` | %s | %s |\n", path, t.Kind, cell(t.OriginalValue)))
		}
	}

	if len(r.SchemaErrors) > 0 {
		b.WriteString("\n## Schema Violations\n\n")
		for _, v := range r.SchemaErrors {
			b.WriteString("- " + v + "\n")
		}
	}

	if len(r.Certificates) > 0 {
		b.WriteString("\n## Certificates\n\n")
		b.WriteString("| # | Subject | Issuer | Not After | Valid | Key |\n")
		b.WriteString("|---:|---|---|---|---:|---|\n")
		for _, c := range r.Certificates {
			b.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %t | %s %s |\n",
				c.Index, cell(c.Subject), cell(c.Issuer), c.NotAfter, c.IsValid, c.KeyAlgorithm, c.KeySize))
		}
	}

	return b.String()
}

func metadataRows(md pattern.Metadata) [][2]string {
	switch m := md.(type) {
	case pattern.DSSEMetadata:
		rows := [][2]string{
			{"Payload Type", m.PayloadType},
			{"Signatures", fmt.Sprint(m.SignatureCount)},
		}
		for i, s := range m.Signatures {
			keyID := s.KeyID
			if keyID == "" {
				keyID = "-"
			}
			rows = append(rows, [2]string{fmt.Sprintf("Signature %d", i), fmt.Sprintf("keyid %s, cert %t", keyID, s.HasCert)})
		}
		return appendOptional(rows,
			[2]string{"Statement Type", m.StatementType},
			[2]string{"Predicate Type", m.PredicateType},
			[2]string{"Subject", m.SubjectName},
			[2]string{"Digest", m.Digest},
		)
	case pattern.SigstoreMetadata:
		return [][2]string{
			{"Media Type", m.MediaType},
			{"Tlog Entries", fmt.Sprint(m.TlogEntryCount)},
			{"Certificate Chain", fmt.Sprint(m.HasCertificateChain)},
			{"Rekor Entry", fmt.Sprint(m.HasRekorEntry)},
			{"Timestamp Data", fmt.Sprint(m.HasTimestamp)},
		}
	case pattern.InTotoMetadata:
		rows := [][2]string{
			{"Statement Type", m.StatementType},
			{"Predicate Type", m.PredicateType},
			{"Subjects", fmt.Sprint(m.SubjectCount)},
		}
		return appendOptional(rows,
			[2]string{"Subject", m.SubjectName},
			[2]string{"Digest", m.Digest},
		)
	default:
		return nil
	}
}

func appendOptional(rows [][2]string, extra ...[2]string) [][2]string {
	for _, row := range extra {
		if row[1] != "" {
			rows = append(rows, row)
		}
	}
	return rows
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > maxCellLen {
		s = string(r[:maxCellLen-3]) + "..."
	}
	return strings.ReplaceAll(s, "|", "\\|")
}
