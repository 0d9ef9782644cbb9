// Package parser turns uploaded file content into records. Each format
// parser declares the MIME types and extensions it accepts; the Registry
// dispatches by MIME type first and by extension second.
package parser

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KaramelBytes/tabloom-cli/internal/dataset"
)

// ErrUnsupported indicates no registered parser accepts the input.
var ErrUnsupported = errors.New("unsupported file format")

// Options select sheets, headers, delimiters and encodings.
type Options struct {
	// Sheet names the spreadsheet sheet to read; empty uses SheetIndex.
	Sheet string `json:"sheet,omitempty"`
	// SheetIndex is 1-based; 0 selects the first sheet.
	SheetIndex int `json:"sheetIndex,omitempty"`
	// NoHeader treats the first row as data and names columns column_N.
	NoHeader bool `json:"noHeader,omitempty"`
	// Delimiter for delimited text. 0 sniffs among ',', ';', '\t' and '|'.
	Delimiter rune `json:"delimiter,omitempty"`
	// Encoding is a WHATWG encoding label such as "windows-1252". Empty
	// means UTF-8.
	Encoding string `json:"encoding,omitempty"`
	// MaxRecords stops reading after that many records when positive.
	MaxRecords int `json:"maxRecords,omitempty"`
}

// Parser converts raw content into a dataset.
type Parser interface {
	Name() string
	MimeTypes() []string
	Extensions() []string
	Parse(ctx context.Context, content []byte, opt Options) (dataset.Dataset, error)
}

// Registry holds the available parsers in lookup order.
type Registry struct {
	parsers []Parser
}

// NewRegistry returns a registry with the given parsers.
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// DefaultRegistry returns the delimited-text, spreadsheet and JSON parsers.
func DefaultRegistry() *Registry {
	return NewRegistry(CSV{}, XLSX{}, JSON{})
}

// Register appends a parser. Later parsers only win for inputs earlier
// parsers do not accept.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Lookup selects a parser by MIME type, falling back to the file extension.
func (r *Registry) Lookup(mimeType, filename string) (Parser, error) {
	mt := BaseMime(mimeType)
	if mt != "" {
		for _, p := range r.parsers {
			if contains(p.MimeTypes(), mt) {
				return p, nil
			}
		}
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != "" {
		for _, p := range r.parsers {
			if contains(p.Extensions(), ext) {
				return p, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: mime=%q file=%q", ErrUnsupported, mimeType, filename)
}

// Parse looks up a parser and runs it.
func (r *Registry) Parse(ctx context.Context, mimeType, filename string, content []byte, opt Options) (dataset.Dataset, Parser, error) {
	p, err := r.Lookup(mimeType, filename)
	if err != nil {
		return nil, nil, err
	}
	ds, err := p.Parse(ctx, content, opt)
	if err != nil {
		return nil, p, fmt.Errorf("%s: %w", p.Name(), err)
	}
	return ds, p, nil
}

// MimeTypes lists every accepted MIME type, sorted.
func (r *Registry) MimeTypes() []string {
	return r.collect(Parser.MimeTypes)
}

// Extensions lists every accepted extension, sorted.
func (r *Registry) Extensions() []string {
	return r.collect(Parser.Extensions)
}

// MimeForExtension returns the first MIME type of the parser accepting the
// file extension, or "".
func (r *Registry) MimeForExtension(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, p := range r.parsers {
		if contains(p.Extensions(), ext) && len(p.MimeTypes()) > 0 {
			return p.MimeTypes()[0]
		}
	}
	return ""
}

func (r *Registry) collect(get func(Parser) []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, p := range r.parsers {
		for _, v := range get(p) {
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				out = append(out, v)
			}
		}
	}
	sort.Strings(out)
	return out
}

// BaseMime strips parameters and lower-cases a MIME type.
func BaseMime(mt string) string {
	mt = strings.TrimSpace(mt)
	if mt == "" {
		return ""
	}
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		return base
	}
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// rowsToDataset maps tabular rows to records using the header row.
func rowsToDataset(ctx context.Context, rows [][]string, opt Options) (dataset.Dataset, error) {
	if len(rows) == 0 {
		return dataset.Dataset{}, nil
	}
	var header []string
	body := rows
	if opt.NoHeader {
		width := 0
		for _, r := range rows {
			if len(r) > width {
				width = len(r)
			}
		}
		header = headerNames(make([]string, width))
	} else {
		header = headerNames(rows[0])
		body = rows[1:]
	}

	out := make(dataset.Dataset, 0, len(body))
	for i, row := range body {
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if opt.MaxRecords > 0 && len(out) >= opt.MaxRecords {
			break
		}
		rec := make(dataset.Record, len(row))
		for j, cell := range row {
			name := fmt.Sprintf("column_%d", j+1)
			if j < len(header) {
				name = header[j]
			}
			rec[name] = cell
		}
		out = append(out, rec)
	}
	return out, nil
}

// headerNames fills blank names with column_N and suffixes repeats.
func headerNames(raw []string) []string {
	out := make([]string, len(raw))
	seen := map[string]int{}
	for i, h := range raw {
		name := strings.TrimSpace(h)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s_%d", name, n)
		}
		out[i] = name
	}
	return out
}
