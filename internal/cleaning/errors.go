package cleaning

import (
	"errors"
	"fmt"
)

// ErrInvalidRule is returned by Register for a rule without ID or Apply.
var ErrInvalidRule = errors.New("invalid cleaning rule")

// RuleError reports a rule whose Apply failed or panicked. It never aborts a
// cleaning pass; the rule is skipped and the dataset left as it was.
type RuleError struct {
	RuleID string
	Panic  bool
	Err    error
}

func (e *RuleError) Error() string {
	if e.Panic {
		return fmt.Sprintf("rule %s panicked: %v", e.RuleID, e.Err)
	}
	return fmt.Sprintf("rule %s failed: %v", e.RuleID, e.Err)
}

func (e *RuleError) Unwrap() error { return e.Err }
