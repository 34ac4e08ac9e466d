// Package watch coordinates continuous watching and on-demand full scans over
// the enrolled files. It owns the daemon's global mode state machine and
// guarantees that verification pipelines for the same path never overlap.
package watch

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/confsentinel/sentinel/internal/models"
	"github.com/confsentinel/sentinel/internal/registry"
	"github.com/confsentinel/sentinel/internal/remediate"
	"github.com/confsentinel/sentinel/internal/snapshot"
	"github.com/confsentinel/sentinel/internal/verify"
)

// State is the coordinator's global mode
type State int

const (
	StateIdle State = iota
	StateWatching
	StateScanningExclusive
)

// String returns a readable name for the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateScanningExclusive:
		return "scanning"
	default:
		return "unknown"
	}
}

var (
	// ErrDaemonActive rejects a full scan requested while watching is active
	ErrDaemonActive = errors.New("daemon active: full scans are rejected while watching")

	ErrAlreadyWatching = errors.New("watcher is already running")
	ErrNotWatching     = errors.New("watcher is not running")
	ErrScanActive      = errors.New("a full scan is in progress")
)

// Signal is one raw filesystem change notification
type Signal struct {
	Path string
	Kind string
}

// Source delivers an ordered stream of raw change signals. The channel closes
// only when the source stops.
type Source interface {
	Signals() <-chan Signal
}

// Coordinator serializes verification and remediation per path and enforces
// mutual exclusion between continuous watching and full scans
type Coordinator struct {
	reg        *registry.Registry
	provider   snapshot.Provider
	remediator *remediate.Remediator
	logger     *zap.Logger

	mu       sync.Mutex
	state    State
	stopping bool

	shardCount     int
	shards         []chan Signal
	stop           chan struct{}
	dispatcherDone chan struct{}
	wg             sync.WaitGroup
}

// New creates a coordinator dispatching pipeline work over shardCount workers
func New(reg *registry.Registry, provider snapshot.Provider, remediator *remediate.Remediator, logger *zap.Logger, shardCount int) *Coordinator {
	if shardCount < 1 {
		shardCount = 1
	}
	return &Coordinator{
		reg:        reg,
		provider:   provider,
		remediator: remediator,
		logger:     logger,
		shardCount: shardCount,
	}
}

// State returns the coordinator's current mode
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StartWatching moves the coordinator from Idle to Watching and begins
// consuming raw change signals from source. Signals for the same path are
// routed to the same worker, so per-path processing is totally ordered;
// distinct paths proceed concurrently.
func (c *Coordinator) StartWatching(source Source) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateWatching:
		return ErrAlreadyWatching
	case StateScanningExclusive:
		return ErrScanActive
	}

	c.stop = make(chan struct{})
	c.dispatcherDone = make(chan struct{})
	c.shards = make([]chan Signal, c.shardCount)
	for i := range c.shards {
		c.shards[i] = make(chan Signal, 64)
		c.wg.Add(1)
		go c.worker(c.shards[i])
	}
	go c.dispatch(source)

	c.state = StateWatching
	c.logger.Info("watching started", zap.Int("workers", c.shardCount))
	return nil
}

// StopWatching drains in-flight pipelines and returns the coordinator to
// Idle. Cycles already dispatched complete before the state changes.
func (c *Coordinator) StopWatching() error {
	c.mu.Lock()
	if c.state != StateWatching || c.stopping {
		c.mu.Unlock()
		return ErrNotWatching
	}
	c.stopping = true
	c.mu.Unlock()

	close(c.stop)
	<-c.dispatcherDone
	for _, shard := range c.shards {
		close(shard)
	}
	c.wg.Wait()

	c.mu.Lock()
	c.state = StateIdle
	c.stopping = false
	c.mu.Unlock()

	c.logger.Info("watching stopped")
	return nil
}

// RunFullScan performs one verification pass over every enrolled file. It is
// mutually exclusive with watching and fails with ErrDaemonActive while the
// watcher holds the mode.
func (c *Coordinator) RunFullScan(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrDaemonActive
	}
	c.state = StateScanningExclusive
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}()

	files, err := c.reg.TrackedFiles()
	if err != nil {
		return err
	}

	c.logger.Info("full scan started", zap.Int("files", len(files)))
	for i := range files {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		log := c.logger.With(zap.String("path", files[i].Path), zap.String("mode", "scan"))
		c.checkFile(ctx, &files[i], log)
	}
	c.logger.Info("full scan finished")
	return nil
}

// dispatch routes raw signals from the source to the shard workers until the
// source closes or the coordinator stops
func (c *Coordinator) dispatch(source Source) {
	defer close(c.dispatcherDone)
	for {
		select {
		case sig, ok := <-source.Signals():
			if !ok {
				return
			}
			c.shards[c.shardFor(sig.Path)] <- sig
		case <-c.stop:
			return
		}
	}
}

// shardFor picks the worker partition for a path
func (c *Coordinator) shardFor(path string) int {
	h := fnv.New32a()
	h.Write([]byte(path))
	return int(h.Sum32() % uint32(len(c.shards)))
}

// worker runs dispatched pipelines to completion, one at a time
func (c *Coordinator) worker(shard chan Signal) {
	defer c.wg.Done()
	for sig := range shard {
		c.process(context.Background(), sig)
	}
}

// process runs the full pipeline for one raw signal: durable audit record,
// registry lookup, verification, incident recording, remediation. Failures
// are contained to this cycle and never abort the watch loop.
func (c *Coordinator) process(ctx context.Context, sig Signal) {
	eventUID := uuid.NewString()
	log := c.logger.With(
		zap.String("event_uid", eventUID),
		zap.String("path", sig.Path),
		zap.String("event_kind", sig.Kind),
	)

	// The raw event is persisted before verification so a crashed cycle
	// still leaves an audit record
	if _, err := c.reg.RecordRawEvent(eventUID, sig.Path, sig.Kind, time.Now()); err != nil {
		log.Error("failed to persist raw event, aborting cycle", zap.Error(err))
		return
	}

	file, err := c.reg.TrackedFileByPath(sig.Path)
	if errors.Is(err, registry.ErrNotTracked) {
		log.Debug("ignoring signal for untracked path")
		return
	}
	if err != nil {
		log.Error("registry lookup failed, aborting cycle", zap.Error(err))
		return
	}

	c.checkFile(ctx, file, log)
}

// checkFile verifies one tracked file and handles any divergence
func (c *Coordinator) checkFile(ctx context.Context, file *models.TrackedFile, log *zap.Logger) {
	// A degraded file already has an unresolved divergence on record; it is
	// left alone until restored or re-enrolled
	if file.Degraded {
		log.Debug("skipping degraded file")
		return
	}

	current, err := c.provider.Take(file.Path)
	if errors.Is(err, snapshot.ErrUnreadable) {
		log.Warn("cannot snapshot path, leaving health unchanged", zap.Error(err))
		return
	}
	if err != nil {
		log.Error("snapshot failed, aborting cycle", zap.Error(err))
		return
	}

	res := verify.Verify(file, current)
	if res.Outcome == verify.Match {
		log.Debug("verification passed")
		return
	}

	incident, err := c.reg.RecordIncident(file, res)
	if err != nil {
		log.Error("failed to record incident, aborting cycle", zap.Error(err))
		return
	}

	outcome, err := c.remediator.Remediate(ctx, file, incident)
	if err != nil {
		log.Error("remediation failed",
			zap.String("kind", incident.Kind),
			zap.String("outcome", outcome.String()),
			zap.Error(err),
		)
		return
	}

	log.Info("incident handled",
		zap.Uint("incident_id", incident.ID),
		zap.String("kind", incident.Kind),
		zap.String("outcome", outcome.String()),
	)
}
