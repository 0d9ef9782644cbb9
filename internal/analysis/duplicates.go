package analysis

import (
	"strings"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// DuplicateGroup lists records sharing the same normalized signature.
// The first index is the occurrence a first-wins dedup would keep.
type DuplicateGroup struct {
	Indices   []int  `json:"indices"`
	Signature string `json:"signature"`
}

// NearDuplicateGroup lists records similar to the anchor record Indices[0].
type NearDuplicateGroup struct {
	Indices    []int   `json:"indices"`
	Similarity float64 `json:"similarity"`
}

// DuplicateReport summarizes exact and near duplicates of a dataset.
type DuplicateReport struct {
	TotalRecords int              `json:"totalRecords"`
	ExactGroups  []DuplicateGroup `json:"exactGroups,omitempty"`
	// ExactDuplicates counts redundant copies: every member of an exact
	// group except the first.
	ExactDuplicates int                  `json:"exactDuplicates"`
	UniqueRecords   int                  `json:"uniqueRecords"`
	NearGroups      []NearDuplicateGroup `json:"nearGroups,omitempty"`
	NearDuplicates  int                  `json:"nearDuplicates"`
	KeyFields       []string             `json:"keyFields"`
	Threshold       float64              `json:"threshold"`
	// Truncated is set when only the first MaxPairwise records were
	// searched for near duplicates.
	Truncated bool `json:"truncated,omitempty"`
}

// Signature builds the normalized whole-record signature: fields sorted by
// name, values trimmed and lower-cased, empty fields ignored.
func Signature(r dataset.Record) string {
	var b strings.Builder
	for _, k := range r.Keys() {
		v := r[k]
		if dataset.IsEmpty(v) {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('|')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(dataset.Normalize(v))
	}
	return b.String()
}

// AnalyzeDuplicates finds exact duplicates by signature and near duplicates
// by average edit-distance similarity over the key fields.
func (a *Analyzer) AnalyzeDuplicates(ds dataset.Dataset) DuplicateReport {
	rep := DuplicateReport{TotalRecords: len(ds), Threshold: a.opt.SimilarityThreshold}

	bySig := map[string][]int{}
	var sigOrder []string
	redundant := make([]bool, len(ds))
	for i, r := range ds {
		sig := Signature(r)
		if _, ok := bySig[sig]; !ok {
			sigOrder = append(sigOrder, sig)
		}
		bySig[sig] = append(bySig[sig], i)
	}
	for _, sig := range sigOrder {
		idx := bySig[sig]
		if len(idx) < 2 {
			continue
		}
		rep.ExactGroups = append(rep.ExactGroups, DuplicateGroup{Indices: idx, Signature: sig})
		rep.ExactDuplicates += len(idx) - 1
		for _, i := range idx[1:] {
			redundant[i] = true
		}
	}
	rep.UniqueRecords = len(ds) - rep.ExactDuplicates

	keys := a.opt.KeyFields
	if len(keys) == 0 {
		keys = ds.Fields()
	}
	rep.KeyFields = keys

	limit := len(ds)
	if limit > a.opt.MaxPairwise {
		limit = a.opt.MaxPairwise
		rep.Truncated = true
	}
	grouped := make([]bool, limit)
	for i := 0; i < limit; i++ {
		if redundant[i] || grouped[i] {
			continue
		}
		group := NearDuplicateGroup{Indices: []int{i}}
		var sum float64
		for j := i + 1; j < limit; j++ {
			if redundant[j] || grouped[j] {
				continue
			}
			sim := RecordSimilarity(ds[i], ds[j], keys)
			if sim >= a.opt.SimilarityThreshold {
				group.Indices = append(group.Indices, j)
				grouped[j] = true
				sum += sim
			}
		}
		if len(group.Indices) > 1 {
			group.Similarity = sum / float64(len(group.Indices)-1)
			rep.NearGroups = append(rep.NearGroups, group)
			rep.NearDuplicates += len(group.Indices) - 1
		}
	}
	return rep
}

// RecordSimilarity averages the string similarity of the key fields. Fields
// empty in both records are skipped; if none remain the similarity is 0.
func RecordSimilarity(a, b dataset.Record, keys []string) float64 {
	var sum float64
	n := 0
	for _, k := range keys {
		av, bv := a[k], b[k]
		ae, be := dataset.IsEmpty(av), dataset.IsEmpty(bv)
		if ae && be {
			continue
		}
		n++
		if ae || be {
			continue
		}
		sum += Similarity(dataset.Normalize(av), dataset.Normalize(bv))
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Similarity is 1 - levenshtein(a,b)/max(len(a),len(b)) over runes.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}
