// internal/certification/criteria.go
package certification

import (
	"log"
	"math"

	"github.com/google/uuid"
)

// Evaluate computes the satisfaction fraction in [0,1] for one criterion
// against the given progress. Unknown criterion kinds fail with
// ErrUnsupportedCriterion.
func Evaluate(criterion Criterion, progress Progress) (float64, error) {
	switch c := criterion.(type) {
	case CourseCompletionCriterion:
		if progress.CompletedCourses[c.CourseID] {
			return 1, nil
		}
		return 0, nil
	case QuizScoreCriterion:
		if c.Threshold <= 0 {
			return 1, nil
		}
		return math.Min(1, progress.BestQuizScores[c.CourseID]/c.Threshold), nil
	case TrainingDaysCriterion:
		if c.Required <= 0 {
			return 1, nil
		}
		return math.Min(1, float64(progress.TrainingDays)/float64(c.Required)), nil
	default:
		return 0, ErrUnsupportedCriterion
	}
}

// Aggregate combines all criteria of a certification type into a completion
// percentage (floor of the mean, equal weighting) and a strict all-satisfied
// verdict. A criterion that cannot be evaluated counts as fraction 0 and is
// logged, so one malformed row never blocks the rest. An empty criteria list
// is a configuration error.
func Aggregate(criteria []Criterion, progress Progress) (int, bool, error) {
	if len(criteria) == 0 {
		return 0, false, ErrEmptyCertificationType
	}

	sum := 0.0
	allSatisfied := true
	for _, criterion := range criteria {
		fraction, err := Evaluate(criterion, progress)
		if err != nil {
			log.Printf("warning: criterion %q degraded to unsatisfied: %v", criterion.Description(), err)
			fraction = 0
		}
		sum += fraction
		if fraction < 1 {
			allSatisfied = false
		}
	}

	pct := int(math.Floor(100 * sum / float64(len(criteria))))
	return pct, allSatisfied, nil
}

// criterionFromRow maps a stored criterion row onto the closed variant set.
// Unrecognized kinds become unknownCriterion, which Evaluate rejects.
func criterionFromRow(kind string, courseID uuid.UUID, threshold float64, description string) Criterion {
	switch kind {
	case "course_completion":
		return CourseCompletionCriterion{CourseID: courseID, Desc: description}
	case "quiz_score":
		return QuizScoreCriterion{CourseID: courseID, Threshold: threshold, Desc: description}
	case "training_days":
		return TrainingDaysCriterion{Required: int(threshold), Desc: description}
	default:
		return unknownCriterion{Kind: kind, Desc: description}
	}
}
