// internal/verification/service.go
package verification

import (
	"context"
)

// Service defines the interface for public certificate verification.
type Service interface {
	Verify(ctx context.Context, certificateID string) (*IssuanceRecord, error)
}
