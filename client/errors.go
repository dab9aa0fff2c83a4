package client

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrElementNotFound  = errors.New("element not found")
	ErrAmbiguousLocator = errors.New("locator matched more than one element")
	ErrOptionNotFound   = errors.New("option not found in dropdown")
	ErrNotSelect        = errors.New("element is not a <select>")
	ErrNotInteractable  = errors.New("element not interactable")
)

// ErrorKind classifies a failed step so callers can decide what to do with it.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not-found"
	KindTimeout        ErrorKind = "timeout"
	KindAmbiguous      ErrorKind = "ambiguous"
	KindOptionMismatch ErrorKind = "option-mismatch"
	KindInteraction    ErrorKind = "interaction"
	KindCanceled       ErrorKind = "canceled"
)

// StepError is returned by every booking step.
type StepError struct {
	Step    string // e.g. "SelectSlot"
	Slot    int    // 1-3, 0 for run-level steps
	Locator string
	Err     error
}

func (e *StepError) Error() string {
	msg := e.Step
	if e.Slot > 0 {
		msg = fmt.Sprintf("%s (slot %d)", msg, e.Slot)
	}
	if e.Locator != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Locator)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Kind reports the failure class. A locator that never matched before the
// step deadline is KindNotFound; KindTimeout is left for waits that are not
// tied to a locator, such as navigation. A run interrupted by its caller is
// KindCanceled whatever it was waiting for.
func (e *StepError) Kind() ErrorKind {
	switch {
	case errors.Is(e.Err, context.Canceled):
		return KindCanceled
	case errors.Is(e.Err, ErrAmbiguousLocator):
		return KindAmbiguous
	case errors.Is(e.Err, ErrOptionNotFound), errors.Is(e.Err, ErrNotSelect):
		return KindOptionMismatch
	case errors.Is(e.Err, ErrElementNotFound):
		return KindNotFound
	case errors.Is(e.Err, ErrNotInteractable):
		return KindInteraction
	case errors.Is(e.Err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInteraction
	}
}

// MissingEnvError reports a required environment variable that is unset or blank.
type MissingEnvError struct {
	Name string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("'%s' is not set", e.Name)
}

// Remediation is the message shown to the operator before exiting.
func (e *MissingEnvError) Remediation() string {
	return fmt.Sprintf("Error: '%s' secret not set.\n"+
		"Export it in your shell, add it to the .env file, or when running in CI add it under\n"+
		"Settings > Secrets and variables > Actions.", e.Name)
}
