package analysis

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

func TestDetectTypePrecedence(t *testing.T) {
	cases := map[any]string{
		true:                TypeBoolean,
		"Yes":               TypeBoolean,
		"42":                TypeInteger,
		42.0:                TypeInteger,
		"1,234":             TypeInteger,
		"3.14":              TypeDecimal,
		2.5:                 TypeDecimal,
		"0,5":               TypeDecimal,
		"2024-01-05":        TypeDate,
		"a@b.co":            TypeEmail,
		"+1 (555) 123-4567": TypePhone,
		"555-1234":          TypePhone,
		"https://x.io/a":    TypeURL,
		"hello":             TypeString,
		"  ":                TypeEmpty,
	}
	for in, want := range cases {
		assert.Equal(t, want, DetectType(in), "value %#v", in)
	}
	assert.Equal(t, TypeDate, DetectType(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, TypeEmpty, DetectType(nil))
}

func TestTypeDetectorsOrder(t *testing.T) {
	var labels []string
	for _, d := range TypeDetectors {
		labels = append(labels, d.Label)
	}
	assert.Equal(t, []string{"boolean", "integer", "decimal", "date", "email", "phone", "url", "string"}, labels)
}

func TestParseNumberLocales(t *testing.T) {
	cases := map[string]float64{
		"1.000,5":  1000.5,
		"0,5":      0.5,
		"1,234":    1234,
		"1,234.5":  1234.5,
		"$12.50":   12.5,
		"12%":      12,
		" -7 ":     -7,
		"12 345,6": 12345.6,
	}
	for in, want := range cases {
		got, ok := ParseNumber(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}
	for _, bad := range []string{"", "abc", "NaN", "inf", "2024-01-05", "1.2.3"} {
		_, ok := ParseNumber(bad)
		assert.False(t, ok, bad)
	}
}

func TestParseDateReturnsLayout(t *testing.T) {
	d, layout, ok := ParseDate("05/01/2024")
	require.True(t, ok)
	assert.Equal(t, "02/01/2006", layout)
	assert.Equal(t, time.January, d.Month())
	assert.Equal(t, 5, d.Day())

	_, layout, ok = ParseDate("2024-03-09")
	require.True(t, ok)
	assert.Equal(t, "2006-01-02", layout)

	_, _, ok = ParseDate("not a date")
	assert.False(t, ok)
}

func profileFixture() dataset.Dataset {
	return dataset.Dataset{
		{"name": "Alice", "qty": "10", "email": "a@x.io"},
		{"name": "bob", "qty": "20", "email": ""},
		{"name": "alice ", "qty": "30"},
		{"qty": "abc"},
	}
}

func findField(t *testing.T, fields []FieldAnalysis, name string) FieldAnalysis {
	t.Helper()
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	t.Fatalf("field %q not analyzed", name)
	return FieldAnalysis{}
}

func TestAnalyzeFields(t *testing.T) {
	a := NewAnalyzer(DefaultOptions())
	fields := a.AnalyzeFields(profileFixture())
	require.Len(t, fields, 3)

	email := findField(t, fields, "email")
	assert.Equal(t, 4, email.Total)
	assert.Equal(t, 1, email.Filled)
	assert.Equal(t, 1, email.Empty)
	assert.Equal(t, 2, email.Missing)
	assert.InDelta(t, 0.25, email.CompletenessRate, 1e-9)
	assert.Equal(t, TypeEmail, email.DominantType)
	assert.Nil(t, email.Numeric)

	name := findField(t, fields, "name")
	assert.Equal(t, 3, name.Filled)
	assert.Equal(t, 2, name.UniqueCount)
	assert.Equal(t, []string{"Alice"}, name.DuplicateValues)
	require.NotEmpty(t, name.TopValues)
	assert.Equal(t, "Alice", name.TopValues[0].Value)
	assert.Equal(t, 2, name.TopValues[0].Count)
	assert.InDelta(t, 1.0, name.FormatConsistency, 1e-9)

	qty := findField(t, fields, "qty")
	assert.Equal(t, TypeInteger, qty.DominantType)
	assert.Equal(t, map[string]int{TypeInteger: 3, TypeString: 1}, qty.Types)
	assert.InDelta(t, 0.75, qty.FormatConsistency, 1e-9)
	require.NotNil(t, qty.Numeric)
	assert.Equal(t, 3, qty.Numeric.Count)
	assert.Equal(t, 10.0, qty.Numeric.Min)
	assert.Equal(t, 30.0, qty.Numeric.Max)
	assert.InDelta(t, 20, qty.Numeric.Mean, 1e-9)
	assert.InDelta(t, 20, qty.Numeric.Median, 1e-9)
	assert.InDelta(t, 10, qty.Numeric.StdDev, 1e-9)
	assert.InDelta(t, 10, qty.Numeric.Q1, 1e-9)
	assert.InDelta(t, 30, qty.Numeric.Q3, 1e-9)
}

func TestQuartilesAreHalfMedians(t *testing.T) {
	q1, q3 := Quartiles([]float64{8, 1, 7, 2, 6, 3, 5, 4})
	assert.InDelta(t, 2.5, q1, 1e-9)
	assert.InDelta(t, 6.5, q3, 1e-9)

	q1, q3 = Quartiles([]float64{42})
	assert.Equal(t, 42.0, q1)
	assert.Equal(t, 42.0, q3)

	q1, q3 = Quartiles(nil)
	assert.Zero(t, q1)
	assert.Zero(t, q3)
}

func TestAnalyzeFieldsTopNBound(t *testing.T) {
	var ds dataset.Dataset
	for i := 0; i < 20; i++ {
		ds = append(ds, dataset.Record{"code": string(rune('a' + i))})
	}
	fields := NewAnalyzer(Options{TopN: 3}).AnalyzeFields(ds)
	require.Len(t, fields, 1)
	assert.Len(t, fields[0].TopValues, 3)
	assert.Equal(t, 20, fields[0].UniqueCount)
}

func TestAnalyzeFieldsDoesNotMutate(t *testing.T) {
	ds := profileFixture()
	before := ds.Clone()
	NewAnalyzer(DefaultOptions()).AnalyzeFields(ds)
	NewAnalyzer(DefaultOptions()).AnalyzeDuplicates(ds)
	assert.True(t, dataset.Equal(before, ds))
}

func duplicateFixture() dataset.Dataset {
	return dataset.Dataset{
		{"id": "1", "name": "Widget"},
		{"id": "1", "name": " widget "},
		{"id": "2", "name": "Widgets"},
		{"id": "3", "name": "Gadget"},
		{"id": "", "name": ""},
	}
}

func TestAnalyzeDuplicatesExactAndNear(t *testing.T) {
	a := NewAnalyzer(Options{KeyFields: []string{"name"}})
	rep := a.AnalyzeDuplicates(duplicateFixture())

	assert.Equal(t, 5, rep.TotalRecords)
	require.Len(t, rep.ExactGroups, 1)
	assert.Equal(t, []int{0, 1}, rep.ExactGroups[0].Indices)
	assert.Equal(t, "id=1|name=widget", rep.ExactGroups[0].Signature)
	assert.Equal(t, 1, rep.ExactDuplicates)
	assert.Equal(t, 4, rep.UniqueRecords)

	require.Len(t, rep.NearGroups, 1)
	assert.Equal(t, []int{0, 2}, rep.NearGroups[0].Indices)
	assert.InDelta(t, 1-1.0/7, rep.NearGroups[0].Similarity, 1e-9)
	assert.Equal(t, 1, rep.NearDuplicates)
	assert.Equal(t, DefaultSimilarityThreshold, rep.Threshold)
	assert.False(t, rep.Truncated)
}

func TestAnalyzeDuplicatesAllFieldsByDefault(t *testing.T) {
	rep := NewAnalyzer(DefaultOptions()).AnalyzeDuplicates(duplicateFixture())
	assert.Equal(t, []string{"id", "name"}, rep.KeyFields)
	// "1" vs "2" pulls the average below the threshold.
	assert.Empty(t, rep.NearGroups)
}

func TestAnalyzeDuplicatesTruncates(t *testing.T) {
	rep := NewAnalyzer(Options{MaxPairwise: 2}).AnalyzeDuplicates(duplicateFixture())
	assert.True(t, rep.Truncated)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.Equal(t, 0.0, Similarity("abc", ""))
	assert.InDelta(t, 1-3.0/7, Similarity("kitten", "sitting"), 1e-9)
}

func TestReportMarkdown(t *testing.T) {
	r := NewAnalyzer(Options{KeyFields: []string{"name"}}).Report("items.csv", duplicateFixture())
	md := r.Markdown()
	for _, want := range []string{
		"[DATASET SUMMARY]",
		"File: items.csv",
		"Records: 5",
		"[SCHEMA]",
		"- id: integer",
		"[DUPLICATES]",
		"[HEAD AND SAMPLE ROWS]",
		"| id | name |",
	} {
		assert.True(t, strings.Contains(md, want), "missing %q in:\n%s", want, md)
	}
}
