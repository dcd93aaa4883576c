// internal/certification/service.go
package certification

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pawcademy/pkg/eventstore"
)

// Service defines the interface for the certification progress service.
type Service interface {
	// EnsureRecords creates the missing certification records for a
	// (user, dog) pair, one per defined certification type. Idempotent.
	EnsureRecords(ctx context.Context, userID, dogID uuid.UUID) ([]*Certification, error)

	RecordCourseCompletion(ctx context.Context, userID, dogID, courseID uuid.UUID) error
	RecordQuizScore(ctx context.Context, userID, dogID, courseID uuid.UUID, score float64) error
	RecordTrainingDay(ctx context.Context, userID, dogID uuid.UUID, day time.Time) error

	GetCertification(ctx context.Context, id uuid.UUID) (*Certification, error)

	// Recompute re-evaluates one certification against live progress data,
	// persists the result and reports whether every criterion is satisfied.
	Recompute(ctx context.Context, certificationID uuid.UUID) (*Certification, bool, error)

	GetSnapshot(ctx context.Context, certificationID uuid.UUID) (*Snapshot, error)
	ListAchievements(ctx context.Context, userID, dogID uuid.UUID) ([]Achievement, error)
	History(ctx context.Context, certificationID uuid.UUID) ([]eventstore.Event, error)
}
