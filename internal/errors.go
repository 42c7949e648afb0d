package internal

import (
	"errors"
	"fmt"
)

var (
	ErrExtraction         = errors.New("text extraction failed")
	ErrTimeout            = errors.New("external command timed out")
	ErrInvalidNumber      = errors.New("invalid invoice number")
	ErrInvalidTypeCode    = errors.New("invalid invoice type code")
	ErrArtifactWrite      = errors.New("artifact write failed")
	ErrNoInvoices         = errors.New("no invoice sections found")
	ErrMissingOCRBinaries = errors.New("pdftoppm and tesseract are required for OCR fallback")
)

type Stage string

const (
	StageAcquire  Stage = "acquire"
	StageSegment  Stage = "segment"
	StageMetadata Stage = "metadata"
	StageSummary  Stage = "summary"
	StageArtifact Stage = "artifact"
	StagePersist  Stage = "persist"
)

// StageError reports where in a bundle a failure happened. Section and Page
// are -1 when not applicable.
type StageError struct {
	Stage   Stage
	Section int
	Page    int
	Err     error
}

func (e *StageError) Error() string {
	switch {
	case e.Section >= 0 && e.Page >= 0:
		return fmt.Sprintf("%s: section %d page %d: %v", e.Stage, e.Section, e.Page, e.Err)
	case e.Section >= 0:
		return fmt.Sprintf("%s: section %d: %v", e.Stage, e.Section, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
}

func (e *StageError) Unwrap() error { return e.Err }

func NewStageError(stage Stage, section, page int, err error) *StageError {
	return &StageError{Stage: stage, Section: section, Page: page, Err: err}
}
