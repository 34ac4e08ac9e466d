// Package notify delivers incident alerts to operators. Delivery is best
// effort: failures are reported to the caller for logging but never block
// remediation.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Summary is the operator-facing description of one incident
type Summary struct {
	Path      string    `json:"path"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	ObservedDigest     string `json:"observed_digest,omitempty"`
	ObservedOwner      string `json:"observed_owner,omitempty"`
	ObservedGroup      string `json:"observed_group,omitempty"`
	ObservedPermission string `json:"observed_permission,omitempty"`
}

// Subject returns a short alert subject line for the incident
func (s Summary) Subject() string {
	return fmt.Sprintf("File integrity failed: %s (%s mismatch)", s.Path, s.Kind)
}

// Notifier delivers an incident summary to an operator
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// Multi fans a summary out to several notifiers and joins their errors
type Multi []Notifier

// Notify delivers the summary through every configured notifier
func (m Multi) Notify(ctx context.Context, s Summary) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
