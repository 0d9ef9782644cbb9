package pipeline

import (
	"io"
	"time"

	"github.com/KaramelBytes/tabloom-cli/internal/cleaning"
	"github.com/KaramelBytes/tabloom-cli/internal/parser"
)

// DefaultMaxSize is the upload limit when Options.Upload.MaxSize is unset.
const DefaultMaxSize int64 = 10 << 20

// File is an uploaded file. Size is the declared size; the content read is
// checked against the limit as well.
type File struct {
	Name         string    `validate:"required,max=255"`
	MimeType     string    `validate:"omitempty,max=255"`
	Size         int64     `validate:"gte=0"`
	LastModified time.Time `validate:"-"`
	Content      io.Reader `validate:"required"`
}

type UploadOptions struct {
	// MaxSize in bytes; 0 means DefaultMaxSize.
	MaxSize int64 `json:"maxSize,omitempty"`
}

type CleanOptions struct {
	// Rules to apply in order; empty means cleaning.DefaultPipeline().
	Rules       []string                    `json:"rules,omitempty"`
	RuleOptions map[string]cleaning.Options `json:"ruleOptions,omitempty"`
}

// Options configure one run.
type Options struct {
	Upload UploadOptions  `json:"upload"`
	Parse  parser.Options `json:"parse"`
	Clean  CleanOptions   `json:"clean"`
	// AIAnalysis is passed through to the stage. The key "disabled" set to
	// true skips the provider and uses the fallback.
	AIAnalysis map[string]any `json:"aiAnalysis,omitempty"`
	// OnProgress, when set, receives every stage transition and progress
	// update. It is called synchronously from the running stage.
	OnProgress func(ProgressEvent) `json:"-"`
}

func (o Options) maxSize() int64 {
	if o.Upload.MaxSize > 0 {
		return o.Upload.MaxSize
	}
	return DefaultMaxSize
}

func (o Options) cleanRules() []string {
	if len(o.Clean.Rules) > 0 {
		return o.Clean.Rules
	}
	return cleaning.DefaultPipeline()
}

func (o Options) aiDisabled() bool {
	v, _ := o.AIAnalysis["disabled"].(bool)
	return v
}
