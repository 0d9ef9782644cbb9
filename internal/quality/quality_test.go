package quality

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

func TestScoreEmptyDatasetIsZero(t *testing.T) {
	assert.Equal(t, 0, NewScorer().Score(nil))
	assert.Equal(t, 0, NewScorer().Score(dataset.Dataset{}))
}

func TestScorePerfectDataset(t *testing.T) {
	ds := dataset.Dataset{
		{"material": "A", "qty": "10", "date": "2024-01-05"},
		{"material": "B", "qty": "12.5", "date": "2024-01-06"},
	}
	b := NewScorer().Evaluate(ds)
	assert.Equal(t, 1.0, b.Completeness)
	assert.Equal(t, 1.0, b.Accuracy)
	assert.Equal(t, 1.0, b.Consistency)
	assert.Equal(t, 4, b.Checked)
	assert.Equal(t, 100, b.Score)
}

func TestScoreDimensions(t *testing.T) {
	ds := dataset.Dataset{
		{"material": "A", "unit": "pcs", "qty": "ten"},
		{"material": "", "unit": "kg", "qty": "3"},
		{"material": "C", "unit": "Kgs", "qty": "4"},
		{"material": "D", "unit": "piece", "qty": "5"},
	}
	b := NewScorer().Evaluate(ds)
	// 11 of 12 cells filled.
	assert.InDelta(t, 11.0/12, b.Completeness, 1e-9)
	// "ten" fails the numeric check.
	assert.InDelta(t, 0.75, b.Accuracy, 1e-9)
	// pcs and kgs are variants; tolerance is max(1, 0.4) = 1.
	assert.Equal(t, 2, b.Variants)
	assert.Equal(t, 0.0, b.Consistency)
	assert.Equal(t, 59, b.Score) // round(100*(0.4*11/12 + 0.3*0.75))
}

func TestScoreRequiredFieldsOnly(t *testing.T) {
	ds := dataset.Dataset{
		{"id": "1", "note": ""},
		{"id": "2", "note": ""},
	}
	assert.Equal(t, 0.5, NewScorer().Evaluate(ds).Completeness)
	assert.Equal(t, 1.0, NewScorer("id").Evaluate(ds).Completeness)
}

func TestScoreAlwaysInRange(t *testing.T) {
	s := NewScorer()
	inputs := []dataset.Dataset{
		{{}},
		{{"a": nil}},
		{{"email": "nope", "price": "x", "created_at": "never"}},
		{{"unit": "pcs"}, {"unit": "ea"}, {"unit": "kgs"}},
	}
	for i := 0; i < 50; i++ {
		inputs = append(inputs, dataset.Dataset{{"qty": fmt.Sprint(i), "unit": []string{"pcs", "piece", ""}[i%3]}})
	}
	for _, ds := range inputs {
		score := s.Score(ds)
		assert.GreaterOrEqual(t, score, 0)
		assert.LessOrEqual(t, score, 100)
	}
}

func TestCheckFormat(t *testing.T) {
	ok, applies := CheckFormat("createdAt", "2024-02-01")
	assert.True(t, applies)
	assert.True(t, ok)

	ok, applies = CheckFormat("contact_email", "x@y.io")
	assert.True(t, applies)
	assert.True(t, ok)

	ok, applies = CheckFormat("unitPrice", "1.234,50")
	assert.True(t, applies)
	assert.True(t, ok)

	_, applies = CheckFormat("country", "DE")
	assert.False(t, applies)
}

func TestFieldWords(t *testing.T) {
	assert.Equal(t, []string{"material", "code"}, FieldWords("materialCode"))
	assert.Equal(t, []string{"created", "at"}, FieldWords("created_at"))
	assert.Equal(t, []string{"unit", "price"}, FieldWords("Unit Price"))
	require.Empty(t, FieldWords("--"))
}

func TestStatusAndGrade(t *testing.T) {
	assert.Equal(t, StatusGood, Status(80))
	assert.Equal(t, StatusWarning, Status(79.9))
	assert.Equal(t, StatusWarning, Status(60))
	assert.Equal(t, StatusPoor, Status(59))

	assert.Equal(t, GradeExcellent, Grade(85))
	assert.Equal(t, GradeWarning, Grade(84))
	assert.Equal(t, GradeWarning, Grade(70))
	assert.Equal(t, GradePoor, Grade(69))
}
