// internal/verification/implementation.go
package verification

import (
	"context"
	"database/sql"
	"fmt"
)

// service implements the Service interface. It reads only the append-only
// issuance log, so a verifier always gets a consistent answer for an id it
// once saw, even if the parent certification record is gone.
type service struct {
	db *sql.DB
}

// NewService creates a new verification service instance.
func NewService(db *sql.DB) Service {
	return &service{db: db}
}

// Verify looks up an issuance record by certificate id.
func (s *service) Verify(ctx context.Context, certificateID string) (*IssuanceRecord, error) {
	record := &IssuanceRecord{}
	var dogName sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT certificate_id, fingerprint, type_name, level, holder_name, dog_name, issued_at
		FROM issuance_log
		WHERE certificate_id = $1
	`, certificateID).Scan(
		&record.CertificateID,
		&record.Fingerprint,
		&record.TypeName,
		&record.Level,
		&record.HolderName,
		&dogName,
		&record.IssuedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read issuance log: %w", err)
	}
	record.DogName = dogName.String
	return record, nil
}
