// Package registry is the durable record of enrolled files, their baselines,
// and the incident and raw-event audit trails. All mutations of registry
// state go through this package.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/confsentinel/sentinel/internal/models"
	"github.com/confsentinel/sentinel/internal/snapshot"
	"github.com/confsentinel/sentinel/internal/verify"
)

var (
	ErrNotTracked      = errors.New("path is not tracked")
	ErrAlreadyEnrolled = errors.New("path is already enrolled")
)

// Policy holds the remediation flags applied to an enrolled file
type Policy struct {
	AutoRestore bool
	AutoEmail   bool
}

// Registry provides access to the persistent registry
type Registry struct {
	db     *gorm.DB
	logger *zap.Logger

	// rowLocks serializes writes to the same TrackedFile row even when the
	// coordinator's per-path serialization is already in force
	rowLocks sync.Map // uint -> *sync.Mutex
}

// New creates a registry backed by db
func New(db *gorm.DB, logger *zap.Logger) *Registry {
	return &Registry{
		db:     db,
		logger: logger,
	}
}

// lockRow acquires the write lock for one TrackedFile row and returns the
// unlock function
func (r *Registry) lockRow(id uint) func() {
	v, _ := r.rowLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Enroll records a path's current snapshot as its trusted baseline
func (r *Registry) Enroll(path string, snap *snapshot.Snapshot, policy Policy) (*models.TrackedFile, error) {
	file := models.TrackedFile{
		Path:        path,
		GoodDigest:  snap.Digest,
		AutoRestore: policy.AutoRestore,
		AutoEmail:   policy.AutoEmail,
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		// The duplicate check shares the transaction with the insert so a
		// concurrent enrollment of the same path cannot slip between them
		var count int64
		if err := tx.Model(&models.TrackedFile{}).Where("path = ?", path).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyEnrolled
		}

		if err := tx.Create(&file).Error; err != nil {
			return err
		}

		enrolled := models.EnrolledSnapshot{
			TrackedFileID: file.ID,
			Permission:    snap.Permission,
			Owner:         snap.Owner,
			Group:         snap.Group,
			ModTime:       snap.ModTime,
			RawData:       snap.RawData,
		}
		if err := tx.Create(&enrolled).Error; err != nil {
			return err
		}

		file.Snapshot = &enrolled
		return nil
	})
	// The unique index on path backs the in-transaction check under weaker
	// isolation levels
	if errors.Is(err, ErrAlreadyEnrolled) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyEnrolled, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enroll %s: %v", path, err)
	}

	r.logger.Info("enrolled file",
		zap.String("path", path),
		zap.String("digest", snap.Digest),
		zap.Bool("auto_restore", policy.AutoRestore),
		zap.Bool("auto_email", policy.AutoEmail),
	)

	return &file, nil
}

// Reenroll replaces the enrolled baseline of a tracked path wholesale with a
// fresh snapshot and clears any degraded state
func (r *Registry) Reenroll(path string, snap *snapshot.Snapshot) (*models.TrackedFile, error) {
	file, err := r.TrackedFileByPath(path)
	if err != nil {
		return nil, err
	}

	unlock := r.lockRow(file.ID)
	defer unlock()

	err = r.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"good_digest": snap.Digest,
			"degraded":    false,
		}
		if err := tx.Model(&models.TrackedFile{}).Where("id = ?", file.ID).Updates(updates).Error; err != nil {
			return err
		}

		return tx.Model(&models.EnrolledSnapshot{}).
			Where("tracked_file_id = ?", file.ID).
			Updates(map[string]interface{}{
				"permission": snap.Permission,
				"owner":      snap.Owner,
				"group":      snap.Group,
				"mod_time":   snap.ModTime,
				"raw_data":   snap.RawData,
			}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to re-enroll %s: %v", path, err)
	}

	return r.TrackedFileByPath(path)
}

// TrackedFiles returns all enrolled files with their baselines
func (r *Registry) TrackedFiles() ([]models.TrackedFile, error) {
	var files []models.TrackedFile
	if err := r.db.Preload("Snapshot").Order("id").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to list tracked files: %v", err)
	}
	return files, nil
}

// TrackedFileByPath returns the enrolled file for a path, or ErrNotTracked
func (r *Registry) TrackedFileByPath(path string) (*models.TrackedFile, error) {
	var file models.TrackedFile
	err := r.db.Preload("Snapshot").Where("path = ?", path).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s: %v", path, err)
	}
	return &file, nil
}

// TrackedFileByID returns the enrolled file with the given identifier
func (r *Registry) TrackedFileByID(id uint) (*models.TrackedFile, error) {
	var file models.TrackedFile
	err := r.db.Preload("Snapshot").First(&file, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrNotTracked, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up file %d: %v", id, err)
	}
	return &file, nil
}

// RecordRawEvent appends one raw change signal to the audit trail
func (r *Registry) RecordRawEvent(uid, path, kind string, ts time.Time) (*models.RawChangeEvent, error) {
	event := models.RawChangeEvent{
		EventUID:  uid,
		Path:      path,
		EventKind: kind,
		Timestamp: ts,
	}
	if err := r.db.Create(&event).Error; err != nil {
		return nil, fmt.Errorf("failed to record raw event for %s: %v", path, err)
	}
	return &event, nil
}

// RecordIncident persists a classified divergence together with its detail
// row in a single transaction. An incident never exists without its detail.
func (r *Registry) RecordIncident(file *models.TrackedFile, res verify.Result) (*models.Incident, error) {
	if res.Outcome == verify.Match {
		return nil, errors.New("cannot record an incident for a matching verification")
	}

	incident := models.Incident{
		TrackedFileID: file.ID,
		Kind:          res.Outcome.String(),
		Timestamp:     time.Now(),
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&incident).Error; err != nil {
			return err
		}

		switch res.Outcome {
		case verify.ContentMismatch:
			detail := models.ContentMismatchDetail{
				IncidentID:     incident.ID,
				ObservedDigest: res.ObservedDigest,
				ObservedData:   res.ObservedData,
			}
			if err := tx.Create(&detail).Error; err != nil {
				return err
			}
			incident.Content = &detail
		case verify.MetadataMismatch:
			detail := models.MetadataMismatchDetail{
				IncidentID:         incident.ID,
				ObservedOwner:      res.ObservedOwner,
				ObservedGroup:      res.ObservedGroup,
				ObservedPermission: res.ObservedPermission,
			}
			if err := tx.Create(&detail).Error; err != nil {
				return err
			}
			incident.Metadata = &detail
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record incident for %s: %v", file.Path, err)
	}

	return &incident, nil
}

// SetDegraded updates the health flag of one tracked file
func (r *Registry) SetDegraded(id uint, degraded bool) error {
	unlock := r.lockRow(id)
	defer unlock()

	err := r.db.Model(&models.TrackedFile{}).Where("id = ?", id).Update("degraded", degraded).Error
	if err != nil {
		return fmt.Errorf("failed to update health of file %d: %v", id, err)
	}
	return nil
}

// Incidents returns the incident trail, optionally filtered by file, newest
// first, with detail rows preloaded
func (r *Registry) Incidents(fileID uint) ([]models.Incident, error) {
	q := r.db.Preload("TrackedFile").Preload("Content").Preload("Metadata").Order("id desc")
	if fileID != 0 {
		q = q.Where("tracked_file_id = ?", fileID)
	}

	var incidents []models.Incident
	if err := q.Find(&incidents).Error; err != nil {
		return nil, fmt.Errorf("failed to list incidents: %v", err)
	}
	return incidents, nil
}

// IncidentByID returns one incident with its detail rows
func (r *Registry) IncidentByID(id uint) (*models.Incident, error) {
	var incident models.Incident
	err := r.db.Preload("TrackedFile").Preload("Content").Preload("Metadata").First(&incident, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("incident %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up incident %d: %v", id, err)
	}
	return &incident, nil
}

// RawEvents returns the raw change event audit trail, newest first
func (r *Registry) RawEvents() ([]models.RawChangeEvent, error) {
	var events []models.RawChangeEvent
	if err := r.db.Order("id desc").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to list raw events: %v", err)
	}
	return events, nil
}
