// internal/issuance/implementation.go
package issuance

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"pawcademy/internal/certification"
	"pawcademy/internal/clients"
	"pawcademy/pkg/eventstore"
)

const issueAttempts = 3

// service implements the Service interface.
type service struct {
	eventStore     *eventstore.EventStore
	db             *sql.DB
	certifications certification.Service
	renderer       *clients.RendererClient
	issuedCounter  metric.Int64Counter
}

// NewService creates a new issuer. The renderer may be nil; issuance then
// leaves the storage handle to the artifact callback.
func NewService(es *eventstore.EventStore, db *sql.DB, certifications certification.Service, renderer *clients.RendererClient) Service {
	meter := otel.Meter("pawcademy/issuance")
	counter, err := meter.Int64Counter("certificates.issued",
		metric.WithDescription("Number of certificates minted"))
	if err != nil {
		log.Printf("failed to create issuance counter: %v", err)
	}

	return &service{
		eventStore:     es,
		db:             db,
		certifications: certifications,
		renderer:       renderer,
		issuedCounter:  counter,
	}
}

// Issue re-validates eligibility against live progress data, mints a unique
// certificate id and flips the certification to certified, all fenced by the
// aggregate version so two concurrent requests can never both mint. A lost
// race is retried by re-reading state; callers only ever see a certificate or
// ErrNotEligible.
func (s *service) Issue(ctx context.Context, req IssueRequest) (*Certificate, bool, error) {
	for attempt := 0; attempt < issueAttempts; attempt++ {
		cert, err := s.certifications.GetCertification(ctx, req.CertificationID)
		if err != nil {
			return nil, false, err
		}

		if cert.State == certification.StateCertified {
			existing, err := s.getByCertificationID(ctx, cert.ID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}

		// A fresh issuance attempt re-validates against current data before
		// minting, even if the record went eligible long ago.
		cert, allSatisfied, err := s.certifications.Recompute(ctx, cert.ID)
		if err != nil {
			return nil, false, err
		}
		if cert.State == certification.StateCertified {
			continue
		}
		if !allSatisfied || cert.State != certification.StateEligible {
			return nil, false, certification.ErrNotEligible
		}

		minted, err := s.mint(ctx, cert, req)
		if err == eventstore.ErrConcurrencyConflict {
			continue
		}
		if err != nil {
			return nil, false, err
		}

		if s.issuedCounter != nil {
			s.issuedCounter.Add(ctx, 1)
		}
		s.renderAndAttach(ctx, minted)
		return minted, true, nil
	}
	return nil, false, fmt.Errorf("issuance of certification %s: %w", req.CertificationID, eventstore.ErrConcurrencyConflict)
}

// mint performs the atomic part of issuance: event append with the expected
// version, the append-only issuance-log insert and the read-model transition,
// committed together.
func (s *service) mint(ctx context.Context, cert *certification.Certification, req IssueRequest) (*Certificate, error) {
	typeName, level, err := s.getTypeSnapshot(ctx, cert.TypeID)
	if err != nil {
		return nil, err
	}

	id, err := mintCertificateID()
	if err != nil {
		return nil, err
	}

	issuedAt := time.Now().UTC()
	certificate := &Certificate{
		ID:              id,
		Fingerprint:     fingerprint(id),
		CertificationID: cert.ID,
		TypeName:        typeName,
		Level:           level,
		HolderName:      req.HolderName,
		DogName:         req.DogName,
		IssuedAt:        issuedAt,
	}

	eventData, err := json.Marshal(CertificateIssuedEvent{
		CertificateID:   id,
		CertificationID: cert.ID,
		IssuedAt:        issuedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	event := eventstore.Event{EventType: "CertificateIssued", EventData: eventData}
	if err := s.eventStore.AppendInTx(ctx, tx, cert.ID, "certification", cert.Version, []eventstore.Event{event}); err != nil {
		return nil, err
	}

	dogName := sql.NullString{String: req.DogName, Valid: req.DogName != ""}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO issuance_log (certificate_id, fingerprint, certification_id, type_name, level, holder_name, dog_name, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, certificate.ID, certificate.Fingerprint, cert.ID, typeName, level, req.HolderName, dogName, issuedAt)
	if err != nil {
		// The unique certification_id constraint is the at-most-once fence.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, eventstore.ErrConcurrencyConflict
		}
		return nil, fmt.Errorf("failed to append issuance log: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE certifications
		SET state = $1, issued_at = $2, version = $3, updated_at = NOW()
		WHERE id = $4 AND version = $5
	`, certification.StateCertified, issuedAt, cert.Version+1, cert.ID, cert.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update read model: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, eventstore.ErrConcurrencyConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return certificate, nil
}

// renderAndAttach delegates document rendering to the external collaborator.
// Failures are logged, not returned: a certified-but-unrendered certificate is
// valid and the collaborator can retry through the artifact callback.
func (s *service) renderAndAttach(ctx context.Context, certificate *Certificate) {
	if s.renderer == nil {
		return
	}

	handle, err := backoff.Retry(ctx, func() (string, error) {
		return s.renderer.Render(ctx, clients.RenderRequest{
			CertificateID: certificate.ID,
			Fingerprint:   certificate.Fingerprint,
			TypeName:      certificate.TypeName,
			Level:         string(certificate.Level),
			HolderName:    certificate.HolderName,
			DogName:       certificate.DogName,
			IssuedAt:      certificate.IssuedAt,
		})
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(3))
	if err != nil {
		log.Printf("rendering certificate %s failed, awaiting artifact callback: %v", certificate.ID, err)
		return
	}

	if err := s.AttachArtifact(ctx, certificate.ID, handle); err != nil {
		log.Printf("attaching artifact for certificate %s failed: %v", certificate.ID, err)
		return
	}
	certificate.StorageHandle = handle
}

// AttachArtifact stores the rendered document handle on the issuance record
// and mirrors it onto the certification read model.
func (s *service) AttachArtifact(ctx context.Context, certificateID, storageHandle string) error {
	certificate, err := s.GetCertificate(ctx, certificateID)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE issuance_log
		SET storage_handle = $1
		WHERE certificate_id = $2 AND storage_handle IS NULL
	`, storageHandle, certificateID)
	if err != nil {
		return fmt.Errorf("failed to attach artifact to issuance log: %w", err)
	}

	eventData, err := json.Marshal(ArtifactAttachedEvent{
		CertificateID: certificateID,
		StorageHandle: storageHandle,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	for attempt := 0; attempt < issueAttempts; attempt++ {
		cert, err := s.certifications.GetCertification(ctx, certificate.CertificationID)
		if err != nil {
			return err
		}

		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		event := eventstore.Event{EventType: "ArtifactAttached", EventData: eventData}
		if err := s.eventStore.AppendInTx(ctx, tx, cert.ID, "certification", cert.Version, []eventstore.Event{event}); err != nil {
			tx.Rollback()
			if err == eventstore.ErrConcurrencyConflict {
				continue
			}
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE certifications
			SET artifact_handle = $1, version = $2, updated_at = NOW()
			WHERE id = $3 AND version = $4
		`, storageHandle, cert.Version+1, cert.ID, cert.Version)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to update read model: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	}
	return fmt.Errorf("attaching artifact for certificate %s: %w", certificateID, eventstore.ErrConcurrencyConflict)
}

// GetCertificate retrieves an issuance record by certificate id.
func (s *service) GetCertificate(ctx context.Context, certificateID string) (*Certificate, error) {
	return s.scanCertificate(s.db.QueryRowContext(ctx, `
		SELECT certificate_id, fingerprint, certification_id, type_name, level, holder_name, dog_name, storage_handle, issued_at
		FROM issuance_log
		WHERE certificate_id = $1
	`, certificateID))
}

func (s *service) getByCertificationID(ctx context.Context, certificationID uuid.UUID) (*Certificate, error) {
	return s.scanCertificate(s.db.QueryRowContext(ctx, `
		SELECT certificate_id, fingerprint, certification_id, type_name, level, holder_name, dog_name, storage_handle, issued_at
		FROM issuance_log
		WHERE certification_id = $1
	`, certificationID))
}

func (s *service) scanCertificate(row *sql.Row) (*Certificate, error) {
	certificate := &Certificate{}
	var dogName, handle sql.NullString
	err := row.Scan(
		&certificate.ID,
		&certificate.Fingerprint,
		&certificate.CertificationID,
		&certificate.TypeName,
		&certificate.Level,
		&certificate.HolderName,
		&dogName,
		&handle,
		&certificate.IssuedAt,
	)
	if err == sql.ErrNoRows {
		return nil, certification.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate from issuance log: %w", err)
	}
	certificate.DogName = dogName.String
	certificate.StorageHandle = handle.String
	return certificate, nil
}

func (s *service) getTypeSnapshot(ctx context.Context, typeID uuid.UUID) (string, certification.Level, error) {
	var name string
	var level certification.Level
	err := s.db.QueryRowContext(ctx, `
		SELECT name, level FROM certification_types WHERE id = $1
	`, typeID).Scan(&name, &level)
	if err != nil {
		return "", "", fmt.Errorf("failed to snapshot certification type: %w", err)
	}
	return name, level, nil
}
