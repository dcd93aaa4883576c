// internal/certification/domain.go
package certification

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedCriterion   = errors.New("unsupported criterion kind")
	ErrEmptyCertificationType = errors.New("certification type has no criteria")
	ErrNotEligible            = errors.New("certification is not eligible for issuance")
	ErrNotFound               = errors.New("certification not found")
)

// Level orders certification types from bronze up to platinum.
type Level string

const (
	LevelBronze   Level = "bronze"
	LevelSilver   Level = "silver"
	LevelGold     Level = "gold"
	LevelPlatinum Level = "platinum"
)

var levelRanks = map[Level]int{
	LevelBronze:   1,
	LevelSilver:   2,
	LevelGold:     3,
	LevelPlatinum: 4,
}

// Rank returns the ordinal position of the level, higher is better.
func (l Level) Rank() int {
	return levelRanks[l]
}

// State is the lifecycle position of a certification record. Transitions are
// linear (started -> eligible -> certified) and never move backwards.
type State string

const (
	StateStarted   State = "started"
	StateEligible  State = "eligible"
	StateCertified State = "certified"
)

// CertificationType is a catalog entry describing one obtainable certification.
type CertificationType struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Level       Level     `json:"level"`
}

// Criterion is the closed set of requirements a certification type can carry.
// Loading from storage maps unknown kinds to unknownCriterion so that one
// malformed row degrades gracefully instead of failing the whole evaluation.
type Criterion interface {
	Description() string
	isCriterion()
}

// CourseCompletionCriterion is satisfied once the referenced course is
// completed for the (user, dog) context. No partial credit.
type CourseCompletionCriterion struct {
	CourseID uuid.UUID
	Desc     string
}

func (c CourseCompletionCriterion) Description() string { return c.Desc }
func (CourseCompletionCriterion) isCriterion()          {}

// QuizScoreCriterion is satisfied when the best score ever recorded for the
// referenced course's quiz reaches the threshold.
type QuizScoreCriterion struct {
	CourseID  uuid.UUID
	Threshold float64
	Desc      string
}

func (c QuizScoreCriterion) Description() string { return c.Desc }
func (QuizScoreCriterion) isCriterion()          {}

// TrainingDaysCriterion is satisfied when enough distinct calendar days of
// training have been logged.
type TrainingDaysCriterion struct {
	Required int
	Desc     string
}

func (c TrainingDaysCriterion) Description() string { return c.Desc }
func (TrainingDaysCriterion) isCriterion()          {}

type unknownCriterion struct {
	Kind string
	Desc string
}

func (c unknownCriterion) Description() string { return c.Desc }
func (unknownCriterion) isCriterion()          {}

// Progress is everything the evaluator needs about one (user, dog) context.
// Training days are already deduplicated per calendar day.
type Progress struct {
	CompletedCourses map[uuid.UUID]bool
	BestQuizScores   map[uuid.UUID]float64
	TrainingDays     int
}

// Certification is the mutable per-(user, dog, type) progress record. DogID is
// the nil UUID when the certification is not tied to a dog. Version mirrors the
// event-store version of the aggregate.
type Certification struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	DogID          uuid.UUID  `json:"dog_id,omitempty"`
	TypeID         uuid.UUID  `json:"type_id"`
	State          State      `json:"state"`
	CompletionPct  int        `json:"completion_pct"`
	IssuedAt       *time.Time `json:"issued_at,omitempty"`
	ArtifactHandle string     `json:"artifact_handle,omitempty"`
	Version        int        `json:"version"`
}

// CriterionStatus is one line of a snapshot for UI rendering.
type CriterionStatus struct {
	Description string `json:"description"`
	Satisfied   bool   `json:"satisfied"`
}

// Snapshot is the read projection handed to UI collaborators.
type Snapshot struct {
	ID            uuid.UUID         `json:"id"`
	Type          CertificationType `json:"type"`
	State         State             `json:"state"`
	CompletionPct int               `json:"completion_pct"`
	Criteria      []CriterionStatus `json:"criteria"`
}

// Achievement is a read-only projection: one fully satisfied criterion of any
// certification type counts as an earned achievement.
type Achievement struct {
	TypeName  string `json:"type_name"`
	Level     Level  `json:"level"`
	Criterion string `json:"criterion"`
}

// CertificationRegisteredEvent is appended when catalog sync creates a record.
type CertificationRegisteredEvent struct {
	CertificationID uuid.UUID `json:"certification_id"`
	UserID          uuid.UUID `json:"user_id"`
	DogID           uuid.UUID `json:"dog_id,omitempty"`
	TypeID          uuid.UUID `json:"type_id"`
}

// ProgressRecomputedEvent is appended on every recomputation that changed the
// stored completion percentage.
type ProgressRecomputedEvent struct {
	CertificationID uuid.UUID `json:"certification_id"`
	CompletionPct   int       `json:"completion_pct"`
	AllSatisfied    bool      `json:"all_satisfied"`
}

// BecameEligibleEvent is appended on the started -> eligible transition.
type BecameEligibleEvent struct {
	CertificationID uuid.UUID `json:"certification_id"`
	At              time.Time `json:"at"`
}
