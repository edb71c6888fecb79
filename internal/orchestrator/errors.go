// Package orchestrator implements the Pipeline Orchestrator (C7): the fast
// and accurate response pipelines, their background-dispatch wrappers, and
// the caller-facing error taxonomy.
package orchestrator

import (
	"errors"
	"fmt"
)

// Kind is the orchestrator's internal error taxonomy, distinct from the
// caller-facing classes MapError produces. Domain outcomes (NoRelevantActs)
// and transport failures (Timeout, Unavailable) are both represented here
// as explicit variants rather than mixed into one generic error, per the
// rule that the reimplementation should separate them at the type level.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindNoRelevantActs     Kind = "no_relevant_acts"
	KindGenerationTimeout  Kind = "generation_timeout"
	KindTimeout            Kind = "timeout"
	KindUnavailable        Kind = "unavailable"
	KindEmbedding          Kind = "embedding_error"
	KindStructural         Kind = "structural_error"
	KindInternal           Kind = "internal"
)

// PipelineError is the orchestrator's single error type.
type PipelineError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("orchestrator: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("orchestrator: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func newPipelineError(kind Kind, op string, err error) *PipelineError {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// CallerClass is the caller-facing error class, per spec.md §4.5/§7's
// error-mapping table — the orchestrator's only exported classification,
// independent of internal Kind naming.
type CallerClass string

const (
	ClassBadRequest         CallerClass = "BadRequest"
	ClassNotFound           CallerClass = "NotFound"
	ClassGatewayTimeout     CallerClass = "GatewayTimeout"
	ClassServiceUnavailable CallerClass = "ServiceUnavailable"
	ClassInternalError      CallerClass = "InternalError"
)

// MapError classifies err into a caller-facing class. Non-PipelineError
// values (an unhandled panic recovery, a programming error) fall through
// to InternalError, matching the "unknown/unhandled" row of the table.
func MapError(err error) CallerClass {
	if err == nil {
		return ""
	}

	var pe *PipelineError
	if !errors.As(err, &pe) {
		return ClassInternalError
	}

	switch pe.Kind {
	case KindValidation:
		return ClassBadRequest
	case KindNoRelevantActs:
		return ClassNotFound
	case KindGenerationTimeout, KindTimeout:
		return ClassGatewayTimeout
	case KindUnavailable:
		return ClassServiceUnavailable
	case KindEmbedding, KindStructural:
		return ClassInternalError
	default:
		return ClassInternalError
	}
}
