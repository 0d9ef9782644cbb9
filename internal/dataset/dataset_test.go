package dataset

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFields_HeterogeneousSchema(t *testing.T) {
	ds := Dataset{
		{"b": 1, "a": "x"},
		{"a": "y", "c": true},
		{"d": nil},
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, ds.Fields())
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty("  \t "))
	assert.False(t, IsEmpty("a"))
	assert.False(t, IsEmpty(0.0))
	assert.False(t, IsEmpty(false))
}

func TestRecordIsBlank(t *testing.T) {
	assert.True(t, Record{"a": "", "b": "  ", "c": nil}.IsBlank())
	assert.False(t, Record{"a": "", "b": 0}.IsBlank())
	assert.True(t, Record{}.IsBlank())
}

func TestCloneIsolatesRecords(t *testing.T) {
	ds := Dataset{{"a": "1"}}
	cp := ds.Clone()
	cp[0]["a"] = "2"
	assert.Equal(t, "1", ds[0]["a"])
}

func TestEqual(t *testing.T) {
	a := Dataset{{"x": "1", "y": 2.0}}
	b := Dataset{{"y": 2.0, "x": "1"}}
	assert.True(t, Equal(a, b))
	b[0]["x"] = "1 "
	assert.False(t, Equal(a, b))
	assert.False(t, Equal(a, Dataset{}))
}

func TestStringAndFloat(t *testing.T) {
	assert.Equal(t, "10", String(10.0))
	assert.Equal(t, "2.5", String(json.Number("2.5")))
	assert.Equal(t, "", String(nil))

	f, ok := Float(" 3.25 ")
	assert.True(t, ok)
	assert.Equal(t, 3.25, f)
	_, ok = Float("abc")
	assert.False(t, ok)
	f, ok = Float(json.Number("7"))
	assert.True(t, ok)
	assert.Equal(t, 7.0, f)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "abc", Normalize("  ABC "))
}
