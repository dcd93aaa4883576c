// internal/issuance/domain.go
package issuance

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"pawcademy/internal/certification"
)

// certificate ids carry 16 bytes of randomness, encoded as 26 base32
// characters. They are the public verification key and must not be guessable.
const certificateIDBytes = 16

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Certificate is the immutable issuance record. It snapshots the type name,
// level and holder names at issuance time so verification never reads live
// profile data.
type Certificate struct {
	ID              string              `json:"certificate_id"`
	Fingerprint     string              `json:"fingerprint"`
	CertificationID uuid.UUID           `json:"certification_id"`
	TypeName        string              `json:"type_name"`
	Level           certification.Level `json:"level"`
	HolderName      string              `json:"holder_display_name"`
	DogName         string              `json:"dog_display_name,omitempty"`
	StorageHandle   string              `json:"storage_handle,omitempty"`
	IssuedAt        time.Time           `json:"issued_at"`
}

// IssueRequest is the explicit issuance action; eligibility never
// self-certifies.
type IssueRequest struct {
	CertificationID uuid.UUID `json:"certification_id"`
	HolderName      string    `json:"holder_display_name"`
	DogName         string    `json:"dog_display_name,omitempty"`
}

// CertificateIssuedEvent is appended on the eligible -> certified transition.
type CertificateIssuedEvent struct {
	CertificateID   string    `json:"certificate_id"`
	CertificationID uuid.UUID `json:"certification_id"`
	IssuedAt        time.Time `json:"issued_at"`
}

// ArtifactAttachedEvent is appended when the rendering collaborator reports
// the stored document handle.
type ArtifactAttachedEvent struct {
	CertificateID string `json:"certificate_id"`
	StorageHandle string `json:"storage_handle"`
}

// mintCertificateID draws a fresh random certificate identifier.
func mintCertificateID() (string, error) {
	raw := make([]byte, certificateIDBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to draw certificate id: %w", err)
	}
	return idEncoding.EncodeToString(raw), nil
}

// fingerprint derives the short verification code printed on the rendered
// document from the certificate id.
func fingerprint(certificateID string) string {
	sum := blake2b.Sum256([]byte(certificateID))
	return idEncoding.EncodeToString(sum[:5])
}
