// internal/issuance/service.go
package issuance

import (
	"context"
)

// Service defines the interface for the certificate issuer.
type Service interface {
	// Issue mints at most one certificate per certification. The returned
	// bool is true when a certificate was newly minted; an already-certified
	// record returns the existing certificate with false.
	Issue(ctx context.Context, req IssueRequest) (*Certificate, bool, error)

	// AttachArtifact records the storage handle reported by the rendering
	// collaborator. Retryable; never touches certification state.
	AttachArtifact(ctx context.Context, certificateID, storageHandle string) error

	GetCertificate(ctx context.Context, certificateID string) (*Certificate, error)
}
