// Package remediate decides and executes the automated response to a freshly
// recorded incident: alerting, restoring, and updating the file's health flag.
package remediate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/confsentinel/sentinel/internal/models"
	"github.com/confsentinel/sentinel/internal/notify"
	"github.com/confsentinel/sentinel/internal/registry"
)

// Outcome describes how an incident was resolved
type Outcome int

const (
	OutcomeRestored Outcome = iota
	OutcomeDegraded
	OutcomeNotifiedDegraded
)

// String returns a readable name for the outcome
func (o Outcome) String() string {
	switch o {
	case OutcomeRestored:
		return "restored"
	case OutcomeDegraded:
		return "degraded"
	case OutcomeNotifiedDegraded:
		return "notified-degraded"
	default:
		return "unknown"
	}
}

// Remediator executes the policy response to an incident
type Remediator struct {
	reg      *registry.Registry
	applier  Applier
	notifier notify.Notifier
	logger   *zap.Logger
}

// New creates a remediator. notifier may be nil when no alert channel is
// configured.
func New(reg *registry.Registry, applier Applier, notifier notify.Notifier, logger *zap.Logger) *Remediator {
	return &Remediator{
		reg:      reg,
		applier:  applier,
		notifier: notifier,
		logger:   logger,
	}
}

// Remediate handles one freshly recorded incident according to the file's
// policy flags. Notification is best effort and never blocks restoration.
// The resulting health flag is always persisted before returning.
func (m *Remediator) Remediate(ctx context.Context, file *models.TrackedFile, incident *models.Incident) (Outcome, error) {
	notified := false
	if file.AutoEmail && m.notifier != nil {
		if err := m.notifier.Notify(ctx, summaryFor(file, incident)); err != nil {
			m.logger.Warn("alert delivery failed",
				zap.String("path", file.Path),
				zap.Error(err),
			)
		} else {
			notified = true
		}
	}

	if !file.AutoRestore {
		if err := m.reg.SetDegraded(file.ID, true); err != nil {
			return OutcomeDegraded, err
		}
		file.Degraded = true
		if notified {
			return OutcomeNotifiedDegraded, nil
		}
		return OutcomeDegraded, nil
	}

	// A metadata incident leaves content intact, so only ownership and
	// permission are written back
	var applyErr error
	switch incident.Kind {
	case models.MismatchMetadata:
		applyErr = m.applier.ApplyMetadata(file.Path, file.Snapshot)
	default:
		applyErr = m.applier.Apply(file.Path, file.Snapshot)
	}

	if applyErr != nil {
		if err := m.reg.SetDegraded(file.ID, true); err != nil {
			return OutcomeDegraded, err
		}
		file.Degraded = true
		return OutcomeDegraded, fmt.Errorf("restore failed for %s: %v", file.Path, applyErr)
	}

	if err := m.reg.SetDegraded(file.ID, false); err != nil {
		return OutcomeRestored, err
	}
	file.Degraded = false

	m.logger.Info("restored file",
		zap.String("path", file.Path),
		zap.String("kind", incident.Kind),
	)
	return OutcomeRestored, nil
}

// summaryFor builds the operator-facing summary of an incident
func summaryFor(file *models.TrackedFile, incident *models.Incident) notify.Summary {
	s := notify.Summary{
		Path:      file.Path,
		Kind:      incident.Kind,
		Timestamp: incident.Timestamp,
	}
	if incident.Content != nil {
		s.ObservedDigest = incident.Content.ObservedDigest
	}
	if incident.Metadata != nil {
		s.ObservedOwner = incident.Metadata.ObservedOwner
		s.ObservedGroup = incident.Metadata.ObservedGroup
		s.ObservedPermission = incident.Metadata.ObservedPermission
	}
	return s
}
