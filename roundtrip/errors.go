package roundtrip

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSlippageOutOfRange = errors.New("slippage bps out of range")
	ErrEmptyPayload       = errors.New("venue returned no transaction payload")
	ErrEmptyBundleElement = errors.New("bundle element is empty")
	ErrEmptyRecipientPool = errors.New("incentive recipient pool is empty")
)

// VenueError is returned when the quote, swap or relay endpoint answers with a non-success response.
type VenueError struct {
	Op     string
	Status int
	Body   string
	Err    error
}

func (e *VenueError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: venue error", e.Op)
	if e.Status != 0 {
		fmt.Fprintf(&b, " status=%d", e.Status)
	}
	if e.Body != "" {
		fmt.Fprintf(&b, " body=%q", e.Body)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err)
	}
	return b.String()
}

func (e *VenueError) Unwrap() error {
	return e.Err
}

// InvalidPayloadError is returned by the signer for an empty or undecodable transaction payload.
type InvalidPayloadError struct {
	Reason string
	Err    error
}

func (e *InvalidPayloadError) Error() string {
	if e.Err != nil {
		return "invalid transaction payload: " + e.Reason + ": " + e.Err.Error()
	}
	return "invalid transaction payload: " + e.Reason
}

func (e *InvalidPayloadError) Unwrap() error {
	return e.Err
}

// ConfigurationError lists every required setting that is missing or invalid.
// It is fatal: the loop never starts, or stops, when it is seen.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + strings.Join(e.Problems, "; ")
}

// StageError tags an iteration failure with the pipeline stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return string(e.Stage) + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Err: err}
}

// IsFatal reports whether err must stop the loop instead of aborting one iteration.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
