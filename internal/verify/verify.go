// Package verify compares a tracked file's current snapshot against its
// enrolled baseline and classifies any divergence.
package verify

import (
	"github.com/confsentinel/sentinel/internal/models"
	"github.com/confsentinel/sentinel/internal/snapshot"
)

// Outcome classifies the result of a verification pass
type Outcome int

const (
	Match Outcome = iota
	ContentMismatch
	MetadataMismatch
)

// String returns a readable name for the outcome
func (o Outcome) String() string {
	switch o {
	case Match:
		return "match"
	case ContentMismatch:
		return models.MismatchContent
	case MetadataMismatch:
		return models.MismatchMetadata
	default:
		return "unknown"
	}
}

// Result is a tagged verification result; the payload fields that are set
// depend on the outcome
type Result struct {
	Outcome Outcome

	// Set when Outcome is ContentMismatch
	ObservedDigest string
	ObservedData   []byte

	// Set when Outcome is MetadataMismatch
	ObservedOwner      string
	ObservedGroup      string
	ObservedPermission string
}

// Verify compares the current snapshot of a tracked file against its enrolled
// baseline. Content divergence takes precedence over metadata divergence:
// metadata is only examined once content is confirmed good, so a single pass
// yields at most one classification.
//
// Verify is a pure function with no side effects.
func Verify(file *models.TrackedFile, current *snapshot.Snapshot) Result {
	if current.Digest != file.GoodDigest {
		return Result{
			Outcome:        ContentMismatch,
			ObservedDigest: current.Digest,
			ObservedData:   current.RawData,
		}
	}

	base := file.Snapshot
	if base != nil &&
		(current.Owner != base.Owner ||
			current.Group != base.Group ||
			current.Permission != base.Permission) {
		return Result{
			Outcome:            MetadataMismatch,
			ObservedOwner:      current.Owner,
			ObservedGroup:      current.Group,
			ObservedPermission: current.Permission,
		}
	}

	return Result{Outcome: Match}
}
