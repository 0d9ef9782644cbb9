package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// CSV parses delimited text (CSV, TSV, semicolon or pipe separated).
type CSV struct{}

func (CSV) Name() string { return "delimited-text" }

func (CSV) MimeTypes() []string {
	return []string{"text/csv", "application/csv", "text/tab-separated-values", "text/plain"}
}

func (CSV) Extensions() []string { return []string{".csv", ".tsv", ".txt"} }

func (CSV) Parse(ctx context.Context, content []byte, opt Options) (dataset.Dataset, error) {
	text, err := decode(content, opt.Encoding)
	if err != nil {
		return nil, err
	}
	text = bytes.TrimPrefix(text, []byte("\xef\xbb\xbf"))

	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(text)
	}
	r := csv.NewReader(bytes.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		rows = append(rows, rec)
		if len(rows)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return rowsToDataset(ctx, rows, opt)
}

// decode converts content to UTF-8 from a WHATWG encoding label.
func decode(content []byte, label string) ([]byte, error) {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, "utf-8") || strings.EqualFold(label, "utf8") {
		return content, nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", label, err)
	}
	out, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", label, err)
	}
	return out, nil
}

// sniffDelimiter picks the candidate occurring most often, outside quotes,
// in the first line. Ties keep the earlier candidate, so ',' is the default.
func sniffDelimiter(text []byte) rune {
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}
	candidates := []rune{',', ';', '\t', '|'}
	counts := make(map[rune]int, len(candidates))
	inQuote := false
	for _, c := range string(line) {
		if c == '"' {
			inQuote = !inQuote
			continue
		}
		if !inQuote {
			counts[c]++
		}
	}
	best := ','
	for _, c := range candidates {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}
