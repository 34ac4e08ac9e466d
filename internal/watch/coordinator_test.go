package watch

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/confsentinel/sentinel/internal/registry"
	"github.com/confsentinel/sentinel/internal/remediate"
	"github.com/confsentinel/sentinel/internal/snapshot"
)

type fakeProvider struct {
	mu    sync.Mutex
	snaps map[string]*snapshot.Snapshot
}

func (p *fakeProvider) set(path string, snap *snapshot.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps[path] = snap
}

func (p *fakeProvider) Take(path string) (*snapshot.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap, ok := p.snaps[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", snapshot.ErrUnreadable, path)
	}
	cp := *snap
	return &cp, nil
}

type countingApplier struct {
	mu         sync.Mutex
	applyCalls int
	metaCalls  int
}

func (a *countingApplier) Apply(path string, snap *models.EnrolledSnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyCalls++
	return nil
}

func (a *countingApplier) ApplyMetadata(path string, snap *models.EnrolledSnapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metaCalls++
	return nil
}

func (a *countingApplier) applied() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.applyCalls
}

type chanSource struct {
	ch chan Signal
}

func (s *chanSource) Signals() <-chan Signal {
	return s.ch
}

type harness struct {
	conn     *gorm.DB
	reg      *registry.Registry
	provider *fakeProvider
	applier  *countingApplier
	coord    *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migrations.Migrate(conn))

	reg := registry.New(conn, zap.NewNop())
	provider := &fakeProvider{snaps: make(map[string]*snapshot.Snapshot)}
	applier := &countingApplier{}
	remediator := remediate.New(reg, applier, nil, zap.NewNop())

	return &harness{
		conn:     conn,
		reg:      reg,
		provider: provider,
		applier:  applier,
		coord:    New(reg, provider, remediator, zap.NewNop(), 4),
	}
}

func (h *harness) enroll(t *testing.T, path, content string, policy registry.Policy) *models.TrackedFile {
	t.Helper()

	snap := &snapshot.Snapshot{
		Digest:     snapshot.Digest([]byte(content)),
		Owner:      "alice",
		Group:      "alice",
		Permission: "644",
		ModTime:    time.Now(),
		RawData:    []byte(content),
	}
	file, err := h.reg.Enroll(path, snap, policy)
	require.NoError(t, err)
	h.provider.set(path, snap)
	return file
}

// tamper makes the provider report diverged content for a path
func (h *harness) tamper(path, content string) {
	h.provider.set(path, &snapshot.Snapshot{
		Digest:     snapshot.Digest([]byte(content)),
		Owner:      "alice",
		Group:      "alice",
		Permission: "644",
		ModTime:    time.Now(),
		RawData:    []byte(content),
	})
}

// runSignals starts watching, delivers the signals, and drains completely
func (h *harness) runSignals(t *testing.T, signals ...Signal) {
	t.Helper()

	src := &chanSource{ch: make(chan Signal, len(signals)+1)}
	require.NoError(t, h.coord.StartWatching(src))
	for _, sig := range signals {
		src.ch <- sig
	}
	close(src.ch)
	<-h.coord.dispatcherDone
	require.NoError(t, h.coord.StopWatching())
}

func TestFullScanRestoresContent(t *testing.T) {
	h := newHarness(t)
	file := h.enroll(t, "/etc/x.conf", "good", registry.Policy{AutoRestore: true})
	h.tamper("/etc/x.conf", "tampered")

	require.NoError(t, h.coord.RunFullScan(context.Background()))
	require.Equal(t, StateIdle, h.coord.State())

	incidents, err := h.reg.Incidents(file.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Equal(t, models.MismatchContent, incidents[0].Kind)
	require.Equal(t, snapshot.Digest([]byte("tampered")), incidents[0].Content.ObservedDigest)

	require.Equal(t, 1, h.applier.applied())

	stored, err := h.reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.False(t, stored.Degraded)
	require.Equal(t, []byte("good"), stored.Snapshot.RawData, "baseline unchanged by restore")
}

func TestFullScanCleanFilesProduceNoIncidents(t *testing.T) {
	h := newHarness(t)
	file := h.enroll(t, "/etc/x.conf", "good", registry.Policy{AutoRestore: true})

	require.NoError(t, h.coord.RunFullScan(context.Background()))
	require.NoError(t, h.coord.RunFullScan(context.Background()))

	incidents, err := h.reg.Incidents(file.ID)
	require.NoError(t, err)
	require.Empty(t, incidents)
	require.Equal(t, 0, h.applier.applied())
}

func TestFullScanRejectedWhileWatching(t *testing.T) {
	h := newHarness(t)
	file := h.enroll(t, "/etc/x.conf", "good", registry.Policy{AutoRestore: true})
	h.tamper("/etc/x.conf", "tampered")

	src := &chanSource{ch: make(chan Signal)}
	require.NoError(t, h.coord.StartWatching(src))
	require.Equal(t, StateWatching, h.coord.State())

	err := h.coord.RunFullScan(context.Background())
	require.ErrorIs(t, err, ErrDaemonActive)

	// The rejected scan mutated nothing
	stored, err := h.reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.False(t, stored.Degraded)
	incidents, err := h.reg.Incidents(0)
	require.NoError(t, err)
	require.Empty(t, incidents)

	close(src.ch)
	<-h.coord.dispatcherDone
	require.NoError(t, h.coord.StopWatching())
	require.Equal(t, StateIdle, h.coord.State())

	// Idle again: the scan proceeds now
	require.NoError(t, h.coord.RunFullScan(context.Background()))
}

func TestWatchPipelineHandlesTampering(t *testing.T) {
	h := newHarness(t)
	file := h.enroll(t, "/etc/x.conf", "good", registry.Policy{AutoRestore: true})
	h.tamper("/etc/x.conf", "tampered")

	h.runSignals(t, Signal{Path: "/etc/x.conf", Kind: models.EventModified})

	incidents, err := h.reg.Incidents(file.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Equal(t, 1, h.applier.applied())

	stored, err := h.reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.False(t, stored.Degraded)
}

func TestEveryRawSignalIsAudited(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "/etc/x.conf", "good", registry.Policy{})

	h.runSignals(t,
		Signal{Path: "/etc/x.conf", Kind: models.EventModified},
		Signal{Path: "/etc/untracked", Kind: models.EventModified},
		Signal{Path: "/etc/x.conf", Kind: models.EventChmod},
	)

	events, err := h.reg.RawEvents()
	require.NoError(t, err)
	require.Len(t, events, 3, "every delivered signal leaves exactly one audit row")

	// The untracked path was ignored without an incident
	incidents, err := h.reg.Incidents(0)
	require.NoError(t, err)
	require.Empty(t, incidents)
}

func TestUnreadablePathKeepsPreviousHealth(t *testing.T) {
	h := newHarness(t)
	file := h.enroll(t, "/etc/x.conf", "good", registry.Policy{AutoRestore: true})
	// Provider no longer serves the path at all
	h.provider.mu.Lock()
	delete(h.provider.snaps, "/etc/x.conf")
	h.provider.mu.Unlock()

	h.runSignals(t, Signal{Path: "/etc/x.conf", Kind: models.EventRemoved})

	stored, err := h.reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.False(t, stored.Degraded, "unreadable path must not change health")

	incidents, err := h.reg.Incidents(0)
	require.NoError(t, err)
	require.Empty(t, incidents)

	events, err := h.reg.RawEvents()
	require.NoError(t, err)
	require.Len(t, events, 1, "the signal itself stays auditable")
}

func TestDegradedFileIsSkipped(t *testing.T) {
	h := newHarness(t)
	file := h.enroll(t, "/etc/x.conf", "good", registry.Policy{AutoRestore: false})
	h.tamper("/etc/x.conf", "tampered")

	h.runSignals(t,
		Signal{Path: "/etc/x.conf", Kind: models.EventModified},
		Signal{Path: "/etc/x.conf", Kind: models.EventModified},
	)

	// The first signal degrades the file; the second is skipped, so no
	// second incident and no filesystem writes at any point
	incidents, err := h.reg.Incidents(file.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Equal(t, 0, h.applier.applied())

	stored, err := h.reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.True(t, stored.Degraded)
}

func TestIncidentWriteFailureAbortsCycle(t *testing.T) {
	h := newHarness(t)
	file := h.enroll(t, "/etc/x.conf", "good", registry.Policy{AutoRestore: true})
	h.tamper("/etc/x.conf", "tampered")

	require.NoError(t, h.conn.Migrator().DropTable(&models.Incident{}))

	h.runSignals(t, Signal{Path: "/etc/x.conf", Kind: models.EventModified})

	// The divergence was real, but without a durable incident no
	// remediation may fire
	require.Equal(t, 0, h.applier.applied())

	stored, err := h.reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.False(t, stored.Degraded, "health unchanged when the cycle aborts")

	events, err := h.reg.RawEvents()
	require.NoError(t, err)
	require.Len(t, events, 1, "the raw event was persisted before the failure")
}

func TestRawEventWriteFailureAbortsCycle(t *testing.T) {
	h := newHarness(t)
	file := h.enroll(t, "/etc/x.conf", "good", registry.Policy{AutoRestore: true})
	h.tamper("/etc/x.conf", "tampered")

	require.NoError(t, h.conn.Migrator().DropTable(&models.RawChangeEvent{}))

	h.runSignals(t, Signal{Path: "/etc/x.conf", Kind: models.EventModified})

	// The cycle aborts before verification, so neither an incident nor a
	// restore happens
	require.Equal(t, 0, h.applier.applied())

	incidents, err := h.reg.Incidents(file.ID)
	require.NoError(t, err)
	require.Empty(t, incidents)

	stored, err := h.reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.False(t, stored.Degraded)
}

func TestMetadataIncidentCarriesObservedValues(t *testing.T) {
	h := newHarness(t)
	file := h.enroll(t, "/etc/x.conf", "good", registry.Policy{AutoRestore: true})
	h.provider.set("/etc/x.conf", &snapshot.Snapshot{
		Digest:     snapshot.Digest([]byte("good")),
		Owner:      "root",
		Group:      "alice",
		Permission: "644",
		ModTime:    time.Now(),
		RawData:    []byte("good"),
	})

	h.runSignals(t, Signal{Path: "/etc/x.conf", Kind: models.EventChmod})

	incidents, err := h.reg.Incidents(file.ID)
	require.NoError(t, err)
	require.Len(t, incidents, 1)
	require.Equal(t, models.MismatchMetadata, incidents[0].Kind)
	require.Equal(t, "root", incidents[0].Metadata.ObservedOwner)

	// Metadata restore only, content untouched
	require.Equal(t, 0, h.applier.applied())
	require.Equal(t, 1, h.applier.metaCalls)

	stored, err := h.reg.TrackedFileByID(file.ID)
	require.NoError(t, err)
	require.False(t, stored.Degraded)
}

func TestStartWatchingTwice(t *testing.T) {
	h := newHarness(t)
	src := &chanSource{ch: make(chan Signal)}
	require.NoError(t, h.coord.StartWatching(src))
	require.ErrorIs(t, h.coord.StartWatching(src), ErrAlreadyWatching)

	close(src.ch)
	<-h.coord.dispatcherDone
	require.NoError(t, h.coord.StopWatching())
	require.ErrorIs(t, h.coord.StopWatching(), ErrNotWatching)
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateIdle:              "idle",
		StateWatching:          "watching",
		StateScanningExclusive: "scanning",
		State(99):              "unknown",
	} {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestScanContextCancellation(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, "/etc/x.conf", "good", registry.Policy{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := h.coord.RunFullScan(ctx)
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, StateIdle, h.coord.State(), "the mode is released on cancellation")
}
