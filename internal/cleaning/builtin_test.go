package cleaning

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/tabloom-cli/internal/analysis"
	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

func messyRows() dataset.Dataset {
	var ds dataset.Dataset
	vals := []any{"", " ", "\t", nil, "x", " y ", 0.0, false}
	for i := 0; i < 40; i++ {
		ds = append(ds, dataset.Record{
			"a": vals[i%len(vals)],
			"b": vals[(i*3)%len(vals)],
			"c": vals[(i*5+1)%len(vals)],
		})
	}
	return append(ds, dataset.Record{}, dataset.Record{"only": "  "})
}

func TestRemoveEmpty_NoBlankSurvivor(t *testing.T) {
	out, err := removeEmpty(messyRows(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	for _, r := range out {
		assert.False(t, r.IsBlank(), "%v", r)
	}
}

func TestTrimWhitespace_Idempotent(t *testing.T) {
	once, err := trimWhitespace(messyRows(), nil)
	require.NoError(t, err)
	twice, err := trimWhitespace(once, nil)
	require.NoError(t, err)
	assert.True(t, dataset.Equal(once, twice))
	for _, r := range once {
		if s, ok := r["b"].(string); ok {
			assert.Equal(t, strings.TrimSpace(s), s)
		}
	}
}

func TestRemoveDuplicates_IdempotentFirstWins(t *testing.T) {
	ds := dataset.Dataset{
		{"id": "1", "name": "first"},
		{"id": "2", "name": "other"},
		{"id": "1", "name": "second"},
		{"materialCode": "M1", "id": "1", "name": "third"},
		{"name": "no key"},
		{"name": "no key"},
	}
	opt := Options{"keyFields": []string{"id"}}
	once, err := removeDuplicates(ds, opt)
	require.NoError(t, err)
	assert.Equal(t, dataset.Dataset{
		{"id": "1", "name": "first"},
		{"id": "2", "name": "other"},
		{"name": "no key"},
	}, once)

	twice, err := removeDuplicates(once, opt)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.LessOrEqual(t, len(once), len(ds))
}

func TestRemoveDuplicates_DefaultKeys(t *testing.T) {
	ds := dataset.Dataset{
		{"materialCode": "M1", "id": "1"},
		{"materialCode": "M1", "id": "2"},
		{"materialCode": "M1", "id": "1", "extra": "ignored"},
	}
	out, err := removeDuplicates(ds, nil)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRemoveDuplicates_BlankKeysUseWholeRecord(t *testing.T) {
	ds := dataset.Dataset{
		{"sku": "A", "qty": "1"},
		{"sku": "B", "qty": "1"},
		{"sku": "A", "qty": "1"},
		{"sku": "A", "qty": "1", "id": ""},
	}
	out, err := removeDuplicates(ds, nil)
	require.NoError(t, err)
	assert.Equal(t, dataset.Dataset{{"sku": "A", "qty": "1"}, {"sku": "B", "qty": "1"}, {"sku": "A", "qty": "1", "id": ""}}, out)
}

func TestStandardizeTerms(t *testing.T) {
	ds := dataset.Dataset{
		{"unit": "PCS", "name": "Bolt"},
		{"unit": "Kilograms", "name": "Sand"},
		{"unit": "box", "name": "Nails"},
	}
	out, err := standardizeTerms(ds, Options{"terms": map[string]any{"Box": "carton"}})
	require.NoError(t, err)
	assert.Equal(t, "piece", out[0]["unit"])
	assert.Equal(t, "kg", out[1]["unit"])
	assert.Equal(t, "carton", out[2]["unit"])
	assert.Equal(t, "Bolt", out[0]["name"])

	limited, err := standardizeTerms(ds, Options{"fields": []string{"name"}})
	require.NoError(t, err)
	assert.Equal(t, "PCS", limited[0]["unit"])
}

func TestFormatDate(t *testing.T) {
	ds := dataset.Dataset{
		{"date": "05/01/2024", "note": "05/01/2024"},
		{"date": "someday"},
		{"date": time.Date(2023, 12, 31, 10, 0, 0, 0, time.UTC)},
		{"date": ""},
	}
	out, err := formatDate(ds, nil)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05", out[0]["date"])
	assert.Equal(t, "05/01/2024", out[0]["note"])
	assert.Equal(t, "someday", out[1]["date"])
	assert.Equal(t, "2023-12-31", out[2]["date"])
	assert.Equal(t, "", out[3]["date"])

	custom, err := formatDate(ds, Options{"layout": "02.01.2006", "fields": "note"})
	require.NoError(t, err)
	assert.Equal(t, "05.01.2024", custom[0]["note"])
	assert.Equal(t, "05/01/2024", custom[0]["date"])
}

func TestFormatNumber(t *testing.T) {
	ds := dataset.Dataset{
		{"qty": "1.234,5", "country": "12"},
		{"qty": "n/a", "country": "DE"},
		{"qty": 3, "price": "$4.567"},
	}
	out, err := formatNumber(ds, Options{"decimals": 2})
	require.NoError(t, err)
	assert.Equal(t, 1234.5, out[0]["qty"])
	assert.Equal(t, "12", out[0]["country"])
	assert.Equal(t, "n/a", out[1]["qty"])
	assert.Equal(t, 3.0, out[2]["qty"])
	assert.Equal(t, 4.57, out[2]["price"])

	byField, err := formatNumber(ds, Options{"fields": []string{"country"}})
	require.NoError(t, err)
	assert.Equal(t, 12.0, byField[0]["country"])
	assert.Equal(t, "1.234,5", byField[0]["qty"])
}

func TestRemoveOutliers(t *testing.T) {
	var ds dataset.Dataset
	for _, v := range []string{"10", "11", "12", "13", "14", "15", "16", "100"} {
		ds = append(ds, dataset.Record{"qty": v, "name": "item" + v})
	}
	ds = append(ds, dataset.Record{"qty": "n/a", "name": "unknown"})

	out, err := removeOutliers(ds, nil)
	require.NoError(t, err)
	assert.Len(t, out, 8)
	for _, r := range out {
		assert.NotEqual(t, "100", r["qty"])
	}

	wide, err := removeOutliers(ds, Options{"multiplier": 100.0})
	require.NoError(t, err)
	assert.Len(t, wide, 9)

	_, err = removeOutliers(ds, Options{"multiplier": -1})
	assert.Error(t, err)
}

func TestRemoveOutliers_BoundsFollowProfileQuartiles(t *testing.T) {
	var ds dataset.Dataset
	for _, v := range []string{"1", "2", "3", "4", "5", "6", "7", "8", "12"} {
		ds = append(ds, dataset.Record{"qty": v})
	}
	fields := analysis.NewAnalyzer(analysis.DefaultOptions()).AnalyzeFields(ds)
	require.Len(t, fields, 1)
	require.NotNil(t, fields[0].Numeric)
	q1, q3 := fields[0].Numeric.Q1, fields[0].Numeric.Q3
	assert.InDelta(t, 2.5, q1, 1e-9)
	assert.InDelta(t, 7.5, q3, 1e-9)

	// 12 sits just inside q3 + 1.2·IQR = 13.5 and outside q3 + 0.8·IQR = 11.5.
	kept, err := removeOutliers(ds, Options{"multiplier": 1.2})
	require.NoError(t, err)
	assert.Len(t, kept, 9)
	trimmed, err := removeOutliers(ds, Options{"multiplier": 0.8})
	require.NoError(t, err)
	assert.Len(t, trimmed, 8)
}

func TestMergeSimilar(t *testing.T) {
	ds := dataset.Dataset{
		{"name": "Widget", "color": ""},
		{"name": "Widgets", "color": "red"},
		{"name": "Gadget", "color": "blue"},
		{"name": "gadget ", "color": "blue"},
	}
	out, err := mergeSimilar(ds, Options{"keyFields": []string{"name"}})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, dataset.Record{"name": "Widget", "color": "red"}, out[0])
	assert.Equal(t, "Gadget", out[1]["name"])
	assert.Equal(t, "", ds[0]["color"])
}

func TestValidateRequired(t *testing.T) {
	ds := dataset.Dataset{{"id": "1"}, {"id": ""}, {"name": "x"}}
	out, err := validateRequired(ds, Options{"requiredFields": "id"})
	require.NoError(t, err)
	assert.Equal(t, dataset.Dataset{{"id": "1"}}, out)

	same, err := validateRequired(ds, nil)
	require.NoError(t, err)
	assert.Len(t, same, 3)
}

func TestFillMissing(t *testing.T) {
	ds := dataset.Dataset{{"unit": ""}, {"unit": "kg"}, {}}
	out, err := fillMissing(ds, Options{"defaults": map[string]any{"unit": "piece"}})
	require.NoError(t, err)
	assert.Equal(t, "piece", out[0]["unit"])
	assert.Equal(t, "kg", out[1]["unit"])
	assert.Equal(t, "piece", out[2]["unit"])
	assert.Equal(t, "", ds[0]["unit"])
}

func TestFillMissing_Statistics(t *testing.T) {
	ds := dataset.Dataset{{"qty": "10", "price": 1.0}, {"qty": "", "price": nil}, {"qty": "30", "price": 4.0}, {"qty": "2"}, {"note": ""}}
	out, err := fillMissing(ds, Options{"defaults": map[string]any{"qty": FillMean, "price": FillMedian, "note": FillMean}})
	require.NoError(t, err)
	assert.InDelta(t, 14.0, out[1]["qty"], 1e-9)
	assert.InDelta(t, 2.5, out[1]["price"], 1e-9)
	assert.Equal(t, "", out[4]["note"])
}
