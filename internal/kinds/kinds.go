// Package kinds defines the error taxonomy shared across the scaffolding
// pipeline, and the process exit codes that the driver maps them to.
package kinds

import "github.com/grailbio/base/errors"

// The pipeline's error kinds. Each wraps github.com/grailbio/base/errors.Kind
// so that callers can test with errors.Is(kind, err) the same way
// encoding/pam/fieldio distinguishes errors.NotExist.
const (
	// InputFormat indicates a malformed index, link-binary, or AGP record.
	InputFormat = errors.Invalid
	// InputSize indicates the sequence count exceeds MaxSequences.
	InputSize = errors.Invalid
	// NoMemory indicates the estimated matrix footprint exceeded the budget.
	NoMemory = errors.Unavailable
	// InsufficientBands indicates normalization could not fit a decay curve.
	InsufficientBands = errors.Precondition
	// IOError indicates a read/write failure.
	IOError = errors.IO
)

// Exit codes, per spec §6.
const (
	ExitOK                = 0
	ExitInputError        = 1
	ExitInsufficientBands = 14
	ExitNoMemory          = 15
)

// MaxSequences is the hard limit on sequence count (§7, "≈45 000 on
// current indexing").
const MaxSequences = 45000

// ExitCode maps an error produced by this module to a process exit code.
// Errors not recognized as one of the pipeline's kinds map to
// ExitInputError, since InputFormat/InputSize/IOError are all fatal.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if errors.Is(InsufficientBands, err) {
		return ExitInsufficientBands
	}
	if errors.Is(NoMemory, err) {
		return ExitNoMemory
	}
	return ExitInputError
}
