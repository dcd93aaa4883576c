// internal/verification/domain.go
package verification

import (
	"errors"
	"time"
)

// ErrNotFound is the valid negative answer for an unknown certificate id.
var ErrNotFound = errors.New("certificate not found")

// IssuanceRecord is everything the public verification page may see: facts
// captured at issuance time, never live profile data.
type IssuanceRecord struct {
	CertificateID string    `json:"certificate_id"`
	Fingerprint   string    `json:"fingerprint"`
	TypeName      string    `json:"type_name"`
	Level         string    `json:"level"`
	HolderName    string    `json:"holder_display_name"`
	DogName       string    `json:"dog_display_name,omitempty"`
	IssuedAt      time.Time `json:"issued_at"`
}
