package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/confsentinel/sentinel/internal/db/migrations"
	"github.com/confsentinel/sentinel/internal/models"
	"github.com/confsentinel/sentinel/internal/snapshot"
	"github.com/confsentinel/sentinel/internal/verify"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)

	// A pooled second connection would see a different in-memory database
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, migrations.Migrate(conn))
	return New(conn, zap.NewNop())
}

func testSnapshot(content string) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Digest:     snapshot.Digest([]byte(content)),
		Owner:      "alice",
		Group:      "alice",
		Permission: "644",
		ModTime:    time.Now(),
		RawData:    []byte(content),
	}
}

func TestEnroll(t *testing.T) {
	reg := testRegistry(t)

	file, err := reg.Enroll("/etc/x.conf", testSnapshot("v1"), Policy{AutoRestore: true})
	require.NoError(t, err)
	require.NotZero(t, file.ID)
	require.NotNil(t, file.Snapshot)
	require.Equal(t, "alice", file.Snapshot.Owner)
	require.False(t, file.Degraded)
	require.True(t, file.AutoRestore)
	require.False(t, file.AutoEmail)

	// Path uniqueness
	_, err = reg.Enroll("/etc/x.conf", testSnapshot("v1"), Policy{})
	require.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestEnrollConcurrentDuplicate(t *testing.T) {
	reg := testRegistry(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = reg.Enroll("/etc/x.conf", testSnapshot("v1"), Policy{})
		}(i)
	}
	wg.Wait()

	var won, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadyEnrolled):
			dup++
		}
	}
	require.Equal(t, 1, won, "exactly one enrollment wins")
	require.Equal(t, 1, dup, "the loser sees ErrAlreadyEnrolled")
}

func TestTrackedFileByPath(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.TrackedFileByPath("/etc/never-enrolled")
	require.ErrorIs(t, err, ErrNotTracked)

	_, err = reg.Enroll("/etc/x.conf", testSnapshot("v1"), Policy{})
	require.NoError(t, err)

	file, err := reg.TrackedFileByPath("/etc/x.conf")
	require.NoError(t, err)
	require.NotNil(t, file.Snapshot)
	require.Equal(t, []byte("v1"), file.Snapshot.RawData)
}

func TestRecordIncidentContent(t *testing.T) {
	reg := testRegistry(t)
	file, err := reg.Enroll("/etc/x.conf", testSnapshot("v1"), Policy{})
	require.NoError(t, err)

	res := verify.Result{
		Outcome:        verify.ContentMismatch,
		ObservedDigest: "d1",
		ObservedData:   []byte("bad"),
	}
	incident, err := reg.RecordIncident(file, res)
	require.NoError(t, err)
	require.Equal(t, models.MismatchContent, incident.Kind)
	require.NotNil(t, incident.Content)
	require.Equal(t, "d1", incident.Content.ObservedDigest)

	// The detail row must exist with its incident
	stored, err := reg.IncidentByID(incident.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Content)
	require.Nil(t, stored.Metadata)
}

func TestRecordIncidentMetadata(t *testing.T) {
	reg := testRegistry(t)
	file, err := reg.Enroll("/etc/x.conf", testSnapshot("v1"), Policy{})
	require.NoError(t, err)

	res := verify.Result{
		Outcome:            verify.MetadataMismatch,
		ObservedOwner:      "root",
		ObservedGroup:      "root",
		ObservedPermission: "600",
	}
	incident, err := reg.RecordIncident(file, res)
	require.NoError(t, err)
	require.Equal(t, models.MismatchMetadata, incident.Kind)

	stored, err := reg.IncidentByID(incident.ID)
	require.NoError(t, err)
	require.Nil(t, stored.Content)
	require.NotNil(t, stored.Metadata)
	require.Equal(t, "root", stored.Metadata.ObservedOwner)
	require.Equal(t, "600", stored.Metadata.ObservedPermission)
}

func TestRecordIncidentRejectsMatch(t *testing.T) {
	reg := testRegistry(t)
	file, err := reg.Enroll("/etc/x.conf", testSnapshot("v1"), Policy{})
	require.NoError(t, err)

	_, err = reg.RecordIncident(file, verify.Result{Outcome: verify.Match})
	require.Error(t, err)
}

func TestSetDegraded(t *testing.T) {
	reg := testRegistry(t)
	file, err := reg.Enroll("/etc/x.conf", testSnapshot("v1"), Policy{})
	require.NoError(t, err)

	require.NoError(t, reg.SetDegraded(file.ID, true))
	stored, err := reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.True(t, stored.Degraded)

	require.NoError(t, reg.SetDegraded(file.ID, false))
	stored, err = reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.False(t, stored.Degraded)
}

func TestReenroll(t *testing.T) {
	reg := testRegistry(t)
	file, err := reg.Enroll("/etc/x.conf", testSnapshot("v1"), Policy{})
	require.NoError(t, err)
	require.NoError(t, reg.SetDegraded(file.ID, true))

	updated, err := reg.Reenroll("/etc/x.conf", testSnapshot("v2"))
	require.NoError(t, err)
	require.False(t, updated.Degraded, "re-enrollment clears degraded state")
	require.Equal(t, snapshot.Digest([]byte("v2")), updated.GoodDigest)
	require.Equal(t, []byte("v2"), updated.Snapshot.RawData)

	_, err = reg.Reenroll("/etc/other", testSnapshot("v1"))
	require.ErrorIs(t, err, ErrNotTracked)
}

func TestRawEvents(t *testing.T) {
	reg := testRegistry(t)

	_, err := reg.RecordRawEvent("uid-1", "/etc/x.conf", models.EventModified, time.Now())
	require.NoError(t, err)
	_, err = reg.RecordRawEvent("uid-2", "/etc/untracked", models.EventChmod, time.Now())
	require.NoError(t, err)

	events, err := reg.RawEvents()
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first
	require.Equal(t, "uid-2", events[0].EventUID)

	// Event UID uniqueness
	_, err = reg.RecordRawEvent("uid-1", "/etc/x.conf", models.EventModified, time.Now())
	require.Error(t, err)
}

func TestIncidentsFilter(t *testing.T) {
	reg := testRegistry(t)
	a, err := reg.Enroll("/etc/a.conf", testSnapshot("a"), Policy{})
	require.NoError(t, err)
	b, err := reg.Enroll("/etc/b.conf", testSnapshot("b"), Policy{})
	require.NoError(t, err)

	_, err = reg.RecordIncident(a, verify.Result{Outcome: verify.ContentMismatch, ObservedDigest: "d1"})
	require.NoError(t, err)
	_, err = reg.RecordIncident(b, verify.Result{Outcome: verify.MetadataMismatch, ObservedOwner: "root"})
	require.NoError(t, err)

	all, err := reg.Incidents(0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	onlyA, err := reg.Incidents(a.ID)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	require.Equal(t, a.ID, onlyA[0].TrackedFileID)
	require.NotNil(t, onlyA[0].TrackedFile)
	require.Equal(t, "/etc/a.conf", onlyA[0].TrackedFile.Path)
}

func TestErrNotTrackedIsDistinct(t *testing.T) {
	reg := testRegistry(t)
	_, err := reg.TrackedFileByID(42)
	require.True(t, errors.Is(err, ErrNotTracked))
}
