package certification

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func quizCriteria(thresholds ...float64) ([]Criterion, []uuid.UUID) {
	criteria := make([]Criterion, len(thresholds))
	courseIDs := make([]uuid.UUID, len(thresholds))
	for i, threshold := range thresholds {
		courseIDs[i] = uuid.New()
		criteria[i] = QuizScoreCriterion{CourseID: courseIDs[i], Threshold: threshold, Desc: "quiz"}
	}
	return criteria, courseIDs
}

func TestEvaluateCourseCompletion(t *testing.T) {
	courseID := uuid.New()
	criterion := CourseCompletionCriterion{CourseID: courseID, Desc: "complete the course"}

	fraction, err := Evaluate(criterion, Progress{CompletedCourses: map[uuid.UUID]bool{courseID: true}})
	require.NoError(t, err)
	assert.Equal(t, 1.0, fraction)

	// No partial credit for an incomplete course.
	fraction, err = Evaluate(criterion, Progress{CompletedCourses: map[uuid.UUID]bool{}})
	require.NoError(t, err)
	assert.Equal(t, 0.0, fraction)
}

func TestEvaluateQuizScoreCapsAtOne(t *testing.T) {
	courseID := uuid.New()
	criterion := QuizScoreCriterion{CourseID: courseID, Threshold: 70, Desc: "pass the quiz"}

	cases := []struct {
		best     float64
		expected float64
	}{
		{0, 0},
		{35, 0.5},
		{70, 1},
		{95, 1},
	}
	for _, tc := range cases {
		fraction, err := Evaluate(criterion, Progress{BestQuizScores: map[uuid.UUID]float64{courseID: tc.best}})
		require.NoError(t, err)
		assert.InDelta(t, tc.expected, fraction, 1e-9)
	}
}

func TestEvaluateTrainingDays(t *testing.T) {
	criterion := TrainingDaysCriterion{Required: 10, Desc: "log ten training days"}

	fraction, err := Evaluate(criterion, Progress{TrainingDays: 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.4, fraction, 1e-9)

	fraction, err = Evaluate(criterion, Progress{TrainingDays: 25})
	require.NoError(t, err)
	assert.Equal(t, 1.0, fraction)
}

func TestEvaluateUnknownKind(t *testing.T) {
	criterion := criterionFromRow("social_walk", uuid.Nil, 3, "attend social walks")

	_, err := Evaluate(criterion, Progress{})
	assert.ErrorIs(t, err, ErrUnsupportedCriterion)
}

func TestAggregateEmptyTypeIsConfigurationError(t *testing.T) {
	_, _, err := Aggregate(nil, Progress{})
	assert.ErrorIs(t, err, ErrEmptyCertificationType)
}

func TestAggregateThreeOfFourIsNotEligible(t *testing.T) {
	criteria, courseIDs := quizCriteria(100, 100, 100, 100)
	progress := Progress{BestQuizScores: map[uuid.UUID]float64{
		courseIDs[0]: 100,
		courseIDs[1]: 100,
		courseIDs[2]: 100,
		courseIDs[3]: 0,
	}}

	pct, allSatisfied, err := Aggregate(criteria, progress)
	require.NoError(t, err)
	assert.Equal(t, 75, pct)
	assert.False(t, allSatisfied)
}

func TestAggregateFloorsThePercentage(t *testing.T) {
	criteria, courseIDs := quizCriteria(100, 100, 100)
	progress := Progress{BestQuizScores: map[uuid.UUID]float64{
		courseIDs[0]: 100,
		courseIDs[1]: 100,
		courseIDs[2]: 99,
	}}

	pct, allSatisfied, err := Aggregate(criteria, progress)
	require.NoError(t, err)
	// mean is 0.9966..., floor of 99.66 is 99
	assert.Equal(t, 99, pct)
	assert.False(t, allSatisfied)
}

func TestAggregateDegradesUnknownCriterionToZero(t *testing.T) {
	courseID := uuid.New()
	criteria := []Criterion{
		CourseCompletionCriterion{CourseID: courseID, Desc: "complete the course"},
		criterionFromRow("social_walk", uuid.Nil, 3, "attend social walks"),
	}
	progress := Progress{CompletedCourses: map[uuid.UUID]bool{courseID: true}}

	pct, allSatisfied, err := Aggregate(criteria, progress)
	require.NoError(t, err)
	assert.Equal(t, 50, pct)
	assert.False(t, allSatisfied)
}

func TestAggregateAllSatisfiedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "criteria")
		criteria := make([]Criterion, 0, n)
		progress := Progress{BestQuizScores: make(map[uuid.UUID]float64)}
		for i := 0; i < n; i++ {
			threshold := rapid.Float64Range(1, 100).Draw(t, "threshold")
			courseID := uuid.New()
			criteria = append(criteria, QuizScoreCriterion{CourseID: courseID, Threshold: threshold, Desc: "quiz"})
			over := rapid.Float64Range(0, 50).Draw(t, "over")
			progress.BestQuizScores[courseID] = threshold + over
		}

		pct, allSatisfied, err := Aggregate(criteria, progress)
		if err != nil {
			t.Fatalf("aggregate failed: %v", err)
		}
		if pct != 100 || !allSatisfied {
			t.Fatalf("all criteria satisfied but got pct=%d allSatisfied=%v", pct, allSatisfied)
		}
	})
}

func TestAggregateAnyShortfallBlocksEligibilityProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "criteria")
		short := rapid.IntRange(0, n-1).Draw(t, "short")
		criteria := make([]Criterion, 0, n)
		progress := Progress{BestQuizScores: make(map[uuid.UUID]float64)}
		for i := 0; i < n; i++ {
			courseID := uuid.New()
			criteria = append(criteria, QuizScoreCriterion{CourseID: courseID, Threshold: 100, Desc: "quiz"})
			if i == short {
				progress.BestQuizScores[courseID] = rapid.Float64Range(0, 99).Draw(t, "score")
			} else {
				progress.BestQuizScores[courseID] = rapid.Float64Range(100, 200).Draw(t, "score")
			}
		}

		pct, allSatisfied, err := Aggregate(criteria, progress)
		if err != nil {
			t.Fatalf("aggregate failed: %v", err)
		}
		if allSatisfied {
			t.Fatalf("criterion %d is short of its threshold but allSatisfied is true", short)
		}
		if pct >= 100 {
			t.Fatalf("pct %d should stay below 100 with an unsatisfied criterion", pct)
		}
	})
}

func TestCriterionFromRowMapsKnownKinds(t *testing.T) {
	courseID := uuid.New()

	criterion := criterionFromRow("course_completion", courseID, 0, "finish it")
	course, ok := criterion.(CourseCompletionCriterion)
	require.True(t, ok)
	assert.Equal(t, courseID, course.CourseID)

	criterion = criterionFromRow("quiz_score", courseID, 70, "pass it")
	quiz, ok := criterion.(QuizScoreCriterion)
	require.True(t, ok)
	assert.Equal(t, 70.0, quiz.Threshold)

	criterion = criterionFromRow("training_days", uuid.Nil, 10, "train")
	training, ok := criterion.(TrainingDaysCriterion)
	require.True(t, ok)
	assert.Equal(t, 10, training.Required)
}
