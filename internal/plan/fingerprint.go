package plan

import (
	"crypto/sha256"
	"encoding/hex"
)

// DomainPlan prefixes plan fingerprints. The version suffix changes if
// the rendering that is hashed ever changes.
const DomainPlan = "pql/plan/v1"

// Fingerprint returns a content address for p: the SHA-256, as hex, of
// its unannotated explanation with domain separation. Plans that differ
// only in operator identity share a fingerprint; any change to an
// operator, binding name or type changes it.
func Fingerprint(p *Plan) string {
	return hashWithDomain(DomainPlan, []byte(ExplainPlan(p, nil)))
}

// hashWithDomain computes SHA256(domain + 0x00 + data). The null byte
// keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
