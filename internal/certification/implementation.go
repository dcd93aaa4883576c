// internal/certification/implementation.go
package certification

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"pawcademy/pkg/eventstore"
)

const recomputeAttempts = 3

// service implements the Service interface.
type service struct {
	eventStore *eventstore.EventStore
	db         *sql.DB
}

// NewService creates a new certification service instance.
func NewService(es *eventstore.EventStore, db *sql.DB) Service {
	return &service{
		eventStore: es,
		db:         db,
	}
}

// EnsureRecords reconciles the catalog for one (user, dog) pair: every defined
// certification type gets exactly one record, created in the started state.
func (s *service) EnsureRecords(ctx context.Context, userID, dogID uuid.UUID) ([]*Certification, error) {
	typeIDs, err := s.listTypeIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list certification types: %w", err)
	}

	if err := s.ensureRecordsForTypes(ctx, userID, dogID, typeIDs); err != nil {
		return nil, err
	}

	return s.listCertifications(ctx, userID, dogID)
}

// ensureRecordsForTypes inserts missing records with insert-if-absent
// semantics. Concurrent and repeated calls never create duplicates because of
// the (user_id, dog_id, type_id) unique constraint.
func (s *service) ensureRecordsForTypes(ctx context.Context, userID, dogID uuid.UUID, typeIDs []uuid.UUID) error {
	for _, typeID := range typeIDs {
		id := uuid.New()

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		var insertedID uuid.UUID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO certifications (id, user_id, dog_id, type_id, state, completion_pct, version)
			VALUES ($1, $2, $3, $4, $5, 0, 1)
			ON CONFLICT (user_id, dog_id, type_id) DO NOTHING
			RETURNING id
		`, id, userID, dogID, typeID, StateStarted).Scan(&insertedID)
		if err == sql.ErrNoRows {
			// Record already exists, nothing to do.
			tx.Rollback()
			continue
		}
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert certification record: %w", err)
		}

		eventData, err := json.Marshal(CertificationRegisteredEvent{
			CertificationID: insertedID,
			UserID:          userID,
			DogID:           dogID,
			TypeID:          typeID,
		})
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to marshal event data: %w", err)
		}

		event := eventstore.Event{EventType: "CertificationRegistered", EventData: eventData}
		if err := s.eventStore.AppendInTx(ctx, tx, insertedID, "certification", 0, []eventstore.Event{event}); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to append event: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
	}
	return nil
}

// RecordCourseCompletion marks a course complete and recomputes every
// certification type carrying a criterion that references the course.
func (s *service) RecordCourseCompletion(ctx context.Context, userID, dogID, courseID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO course_completions (user_id, dog_id, course_id, completed_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, dog_id, course_id) DO NOTHING
	`, userID, dogID, courseID)
	if err != nil {
		return fmt.Errorf("failed to record course completion: %w", err)
	}

	return s.recomputeAffectedByCourse(ctx, userID, dogID, courseID)
}

// RecordQuizScore stores the best score ever recorded for the course quiz. A
// later, worse attempt never lowers the stored score.
func (s *service) RecordQuizScore(ctx context.Context, userID, dogID, courseID uuid.UUID, score float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quiz_scores (user_id, dog_id, course_id, best_score)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, dog_id, course_id)
		DO UPDATE SET best_score = GREATEST(quiz_scores.best_score, EXCLUDED.best_score)
	`, userID, dogID, courseID, score)
	if err != nil {
		return fmt.Errorf("failed to record quiz score: %w", err)
	}

	return s.recomputeAffectedByCourse(ctx, userID, dogID, courseID)
}

// RecordTrainingDay logs one distinct calendar day of training and recomputes
// every certification type carrying a training-days criterion.
func (s *service) RecordTrainingDay(ctx context.Context, userID, dogID uuid.UUID, day time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO training_days (user_id, dog_id, day)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, dog_id, day) DO NOTHING
	`, userID, dogID, day.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to record training day: %w", err)
	}

	typeIDs, err := s.queryTypeIDs(ctx, `
		SELECT DISTINCT type_id FROM certification_criteria WHERE kind = 'training_days'
	`)
	if err != nil {
		return fmt.Errorf("failed to find affected types: %w", err)
	}

	return s.recomputeTuples(ctx, userID, dogID, typeIDs)
}

func (s *service) recomputeAffectedByCourse(ctx context.Context, userID, dogID, courseID uuid.UUID) error {
	typeIDs, err := s.queryTypeIDs(ctx, `
		SELECT DISTINCT type_id FROM certification_criteria WHERE course_id = $1
	`, courseID)
	if err != nil {
		return fmt.Errorf("failed to find affected types: %w", err)
	}

	return s.recomputeTuples(ctx, userID, dogID, typeIDs)
}

func (s *service) recomputeTuples(ctx context.Context, userID, dogID uuid.UUID, typeIDs []uuid.UUID) error {
	if len(typeIDs) == 0 {
		return nil
	}

	// First progress event for a pair may arrive before any explicit catalog
	// sync, so reconcile the affected records on the way in.
	if err := s.ensureRecordsForTypes(ctx, userID, dogID, typeIDs); err != nil {
		return err
	}

	for _, typeID := range typeIDs {
		cert, err := s.getByTuple(ctx, userID, dogID, typeID)
		if err != nil {
			return err
		}
		if _, _, err := s.recompute(ctx, cert); err != nil {
			return err
		}
	}
	return nil
}

// Recompute re-evaluates one certification against live progress data.
func (s *service) Recompute(ctx context.Context, certificationID uuid.UUID) (*Certification, bool, error) {
	cert, err := s.GetCertification(ctx, certificationID)
	if err != nil {
		return nil, false, err
	}
	return s.recompute(ctx, cert)
}

// recompute aggregates the criteria, persists the new percentage and applies
// the started -> eligible transition when every criterion is satisfied. A
// certified record is never touched: the certificate stays valid regardless of
// later data changes. Safe to replay; an unchanged result writes nothing.
func (s *service) recompute(ctx context.Context, cert *Certification) (*Certification, bool, error) {
	if cert.State == StateCertified {
		return cert, true, nil
	}

	criteria, err := s.loadCriteria(ctx, cert.TypeID)
	if err != nil {
		return nil, false, err
	}
	progress, err := s.loadProgress(ctx, cert.UserID, cert.DogID)
	if err != nil {
		return nil, false, err
	}

	pct, allSatisfied, err := Aggregate(criteria, progress)
	if err != nil {
		return nil, false, fmt.Errorf("failed to aggregate criteria: %w", err)
	}

	for attempt := 0; attempt < recomputeAttempts; attempt++ {
		updated, err := s.persistRecomputation(ctx, cert, pct, allSatisfied)
		if err == eventstore.ErrConcurrencyConflict {
			// Lost a race against a concurrent recomputation or issuance for
			// the same record. Last-evaluated-wins: re-read and try again.
			cert, err = s.GetCertification(ctx, cert.ID)
			if err != nil {
				return nil, false, err
			}
			if cert.State == StateCertified {
				return cert, true, nil
			}
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return updated, allSatisfied, nil
	}
	return nil, false, fmt.Errorf("recompute of certification %s: %w", cert.ID, eventstore.ErrConcurrencyConflict)
}

func (s *service) persistRecomputation(ctx context.Context, cert *Certification, pct int, allSatisfied bool) (*Certification, error) {
	newState := cert.State
	if allSatisfied && cert.State == StateStarted {
		newState = StateEligible
	}

	if pct == cert.CompletionPct && newState == cert.State {
		return cert, nil
	}

	events := make([]eventstore.Event, 0, 2)
	recomputedData, err := json.Marshal(ProgressRecomputedEvent{
		CertificationID: cert.ID,
		CompletionPct:   pct,
		AllSatisfied:    allSatisfied,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event data: %w", err)
	}
	events = append(events, eventstore.Event{EventType: "ProgressRecomputed", EventData: recomputedData})

	if newState != cert.State {
		eligibleData, err := json.Marshal(BecameEligibleEvent{CertificationID: cert.ID, At: time.Now().UTC()})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
		events = append(events, eventstore.Event{EventType: "BecameEligible", EventData: eligibleData})
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.eventStore.AppendInTx(ctx, tx, cert.ID, "certification", cert.Version, events); err != nil {
		return nil, err
	}

	newVersion := cert.Version + len(events)
	result, err := tx.ExecContext(ctx, `
		UPDATE certifications
		SET completion_pct = $1, state = $2, version = $3, updated_at = NOW()
		WHERE id = $4 AND version = $5
	`, pct, newState, newVersion, cert.ID, cert.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to update read model: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, eventstore.ErrConcurrencyConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	updated := *cert
	updated.CompletionPct = pct
	updated.State = newState
	updated.Version = newVersion
	return &updated, nil
}

// GetCertification retrieves a certification record by its ID.
func (s *service) GetCertification(ctx context.Context, id uuid.UUID) (*Certification, error) {
	return s.scanCertification(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, dog_id, type_id, state, completion_pct, issued_at, artifact_handle, version
		FROM certifications
		WHERE id = $1
	`, id))
}

func (s *service) getByTuple(ctx context.Context, userID, dogID, typeID uuid.UUID) (*Certification, error) {
	return s.scanCertification(s.db.QueryRowContext(ctx, `
		SELECT id, user_id, dog_id, type_id, state, completion_pct, issued_at, artifact_handle, version
		FROM certifications
		WHERE user_id = $1 AND dog_id = $2 AND type_id = $3
	`, userID, dogID, typeID))
}

func (s *service) scanCertification(row *sql.Row) (*Certification, error) {
	cert := &Certification{}
	var issuedAt sql.NullTime
	var handle sql.NullString
	err := row.Scan(
		&cert.ID,
		&cert.UserID,
		&cert.DogID,
		&cert.TypeID,
		&cert.State,
		&cert.CompletionPct,
		&issuedAt,
		&handle,
		&cert.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certification from read model: %w", err)
	}
	if issuedAt.Valid {
		cert.IssuedAt = &issuedAt.Time
	}
	cert.ArtifactHandle = handle.String
	return cert, nil
}

func (s *service) listCertifications(ctx context.Context, userID, dogID uuid.UUID) ([]*Certification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, dog_id, type_id, state, completion_pct, issued_at, artifact_handle, version
		FROM certifications
		WHERE user_id = $1 AND dog_id = $2
	`, userID, dogID)
	if err != nil {
		return nil, fmt.Errorf("failed to list certifications: %w", err)
	}
	defer rows.Close()

	var certs []*Certification
	for rows.Next() {
		cert := &Certification{}
		var issuedAt sql.NullTime
		var handle sql.NullString
		err := rows.Scan(
			&cert.ID,
			&cert.UserID,
			&cert.DogID,
			&cert.TypeID,
			&cert.State,
			&cert.CompletionPct,
			&issuedAt,
			&handle,
			&cert.Version,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan certification: %w", err)
		}
		if issuedAt.Valid {
			cert.IssuedAt = &issuedAt.Time
		}
		cert.ArtifactHandle = handle.String
		certs = append(certs, cert)
	}
	return certs, rows.Err()
}

// GetSnapshot builds the UI projection for one certification.
func (s *service) GetSnapshot(ctx context.Context, certificationID uuid.UUID) (*Snapshot, error) {
	cert, err := s.GetCertification(ctx, certificationID)
	if err != nil {
		return nil, err
	}

	certType, err := s.getType(ctx, cert.TypeID)
	if err != nil {
		return nil, err
	}
	criteria, err := s.loadCriteria(ctx, cert.TypeID)
	if err != nil {
		return nil, err
	}
	progress, err := s.loadProgress(ctx, cert.UserID, cert.DogID)
	if err != nil {
		return nil, err
	}

	statuses := make([]CriterionStatus, 0, len(criteria))
	for _, criterion := range criteria {
		fraction, err := Evaluate(criterion, progress)
		if err != nil {
			log.Printf("warning: criterion %q degraded to unsatisfied: %v", criterion.Description(), err)
			fraction = 0
		}
		statuses = append(statuses, CriterionStatus{
			Description: criterion.Description(),
			Satisfied:   fraction >= 1,
		})
	}

	return &Snapshot{
		ID:            cert.ID,
		Type:          *certType,
		State:         cert.State,
		CompletionPct: cert.CompletionPct,
		Criteria:      statuses,
	}, nil
}

// ListAchievements projects earned achievements from the same progress data
// the certifications use: every fully satisfied criterion counts.
func (s *service) ListAchievements(ctx context.Context, userID, dogID uuid.UUID) ([]Achievement, error) {
	types, err := s.listTypes(ctx)
	if err != nil {
		return nil, err
	}
	progress, err := s.loadProgress(ctx, userID, dogID)
	if err != nil {
		return nil, err
	}

	var achievements []Achievement
	for _, certType := range types {
		criteria, err := s.loadCriteria(ctx, certType.ID)
		if err != nil {
			return nil, err
		}
		for _, criterion := range criteria {
			fraction, err := Evaluate(criterion, progress)
			if err != nil || fraction < 1 {
				continue
			}
			achievements = append(achievements, Achievement{
				TypeName:  certType.Name,
				Level:     certType.Level,
				Criterion: criterion.Description(),
			})
		}
	}

	sort.Slice(achievements, func(i, j int) bool {
		if achievements[i].Level.Rank() != achievements[j].Level.Rank() {
			return achievements[i].Level.Rank() > achievements[j].Level.Rank()
		}
		return achievements[i].TypeName < achievements[j].TypeName
	})
	return achievements, nil
}

// History returns the audit trail of a certification aggregate.
func (s *service) History(ctx context.Context, certificationID uuid.UUID) ([]eventstore.Event, error) {
	return s.eventStore.LoadEvents(ctx, certificationID)
}

func (s *service) loadCriteria(ctx context.Context, typeID uuid.UUID) ([]Criterion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, course_id, threshold, description
		FROM certification_criteria
		WHERE type_id = $1
		ORDER BY position ASC
	`, typeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load criteria: %w", err)
	}
	defer rows.Close()

	var criteria []Criterion
	for rows.Next() {
		var kind, description string
		var courseID uuid.NullUUID
		var threshold float64
		if err := rows.Scan(&kind, &courseID, &threshold, &description); err != nil {
			return nil, fmt.Errorf("failed to scan criterion: %w", err)
		}
		criteria = append(criteria, criterionFromRow(kind, courseID.UUID, threshold, description))
	}
	return criteria, rows.Err()
}

func (s *service) loadProgress(ctx context.Context, userID, dogID uuid.UUID) (Progress, error) {
	progress := Progress{
		CompletedCourses: make(map[uuid.UUID]bool),
		BestQuizScores:   make(map[uuid.UUID]float64),
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT course_id FROM course_completions WHERE user_id = $1 AND dog_id = $2
	`, userID, dogID)
	if err != nil {
		return progress, fmt.Errorf("failed to load course completions: %w", err)
	}
	for rows.Next() {
		var courseID uuid.UUID
		if err := rows.Scan(&courseID); err != nil {
			rows.Close()
			return progress, fmt.Errorf("failed to scan course completion: %w", err)
		}
		progress.CompletedCourses[courseID] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return progress, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT course_id, best_score FROM quiz_scores WHERE user_id = $1 AND dog_id = $2
	`, userID, dogID)
	if err != nil {
		return progress, fmt.Errorf("failed to load quiz scores: %w", err)
	}
	for rows.Next() {
		var courseID uuid.UUID
		var best float64
		if err := rows.Scan(&courseID, &best); err != nil {
			rows.Close()
			return progress, fmt.Errorf("failed to scan quiz score: %w", err)
		}
		progress.BestQuizScores[courseID] = best
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return progress, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT day) FROM training_days WHERE user_id = $1 AND dog_id = $2
	`, userID, dogID).Scan(&progress.TrainingDays)
	if err != nil {
		return progress, fmt.Errorf("failed to count training days: %w", err)
	}

	return progress, nil
}

func (s *service) getType(ctx context.Context, typeID uuid.UUID) (*CertificationType, error) {
	certType := &CertificationType{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, level FROM certification_types WHERE id = $1
	`, typeID).Scan(&certType.ID, &certType.Name, &certType.Description, &certType.Level)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certification type: %w", err)
	}
	return certType, nil
}

func (s *service) listTypes(ctx context.Context) ([]*CertificationType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, level FROM certification_types
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list certification types: %w", err)
	}
	defer rows.Close()

	var types []*CertificationType
	for rows.Next() {
		certType := &CertificationType{}
		if err := rows.Scan(&certType.ID, &certType.Name, &certType.Description, &certType.Level); err != nil {
			return nil, fmt.Errorf("failed to scan certification type: %w", err)
		}
		types = append(types, certType)
	}
	return types, rows.Err()
}

func (s *service) listTypeIDs(ctx context.Context) ([]uuid.UUID, error) {
	return s.queryTypeIDs(ctx, `SELECT id FROM certification_types`)
}

func (s *service) queryTypeIDs(ctx context.Context, query string, args ...interface{}) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
