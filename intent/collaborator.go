package intent

import (
	"context"
	"fmt"
)

// Collaborator is the external classifier consulted on a cache miss. It
// returns the raw reply text; parsing belongs to the cache.
type Collaborator interface {
	ClassifyText(ctx context.Context, prompt string) (string, error)
}

// CollaboratorFunc adapts a function to Collaborator.
type CollaboratorFunc func(ctx context.Context, prompt string) (string, error)

func (f CollaboratorFunc) ClassifyText(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Failure reasons, also used as metric labels.
const (
	ReasonTimeout    = "timeout"
	ReasonError      = "error"
	ReasonUnparsable = "unparsable"
)

// CollaboratorError describes why a collaborator result was discarded.
// It is logged and counted, never returned from Classify.
type CollaboratorError struct {
	Reason string
	Err    error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Reason, e.Err)
}

func (e *CollaboratorError) Unwrap() error {
	return e.Err
}
