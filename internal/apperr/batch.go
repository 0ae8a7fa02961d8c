package apperr

import (
	"fmt"
	"strings"
)

// ItemFailure records one failed entry of a batch operation.
type ItemFailure struct {
	Item string `json:"item"`
	Code Code   `json:"code"`
	Err  error  `json:"-"`
}

// BatchError reports the entries of a batch that failed while the rest went
// through.
type BatchError struct {
	Failures []ItemFailure
}

func (b *BatchError) Add(item string, err error) {
	b.Failures = append(b.Failures, ItemFailure{Item: item, Code: CodeOf(err), Err: err})
}

// Err returns nil when nothing failed so callers can `return batch.Err()`.
func (b *BatchError) Err() error {
	if b == nil || len(b.Failures) == 0 {
		return nil
	}
	return b
}

func (b *BatchError) Error() string {
	parts := make([]string, 0, len(b.Failures))
	for _, f := range b.Failures {
		parts = append(parts, fmt.Sprintf("%s (%v)", f.Item, f.Err))
	}
	return fmt.Sprintf("%d item(s) failed: %s", len(b.Failures), strings.Join(parts, "; "))
}

func (b *BatchError) Unwrap() []error {
	out := make([]error, 0, len(b.Failures))
	for _, f := range b.Failures {
		out = append(out, f.Err)
	}
	return out
}
