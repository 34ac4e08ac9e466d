package watch

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/confsentinel/sentinel/internal/models"
	"github.com/confsentinel/sentinel/internal/registry"
)

// fileState is the cheap per-path observation used to detect change between
// polls without reading content
type fileState struct {
	present bool
	modTime time.Time
	size    int64
	mode    os.FileMode
	uid     uint32
	gid     uint32
}

// Poller is a change source that rescans the enrolled paths on a ticker and
// emits a signal for every observed difference. Signals are delivered in
// observation order; the producer blocks rather than drops once the channel
// buffer fills.
type Poller struct {
	reg      *registry.Registry
	interval time.Duration
	logger   *zap.Logger

	mu      sync.Mutex
	running bool

	events chan Signal
	stop   chan struct{}
	done   chan struct{}
	states map[string]fileState
}

// NewPoller creates a poll-based change source
func NewPoller(reg *registry.Registry, interval time.Duration, logger *zap.Logger) *Poller {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		reg:      reg,
		interval: interval,
		logger:   logger,
		events:   make(chan Signal, 100),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		states:   make(map[string]fileState),
	}
}

// Signals returns the ordered signal stream. The channel closes when the
// poller stops.
func (p *Poller) Signals() <-chan Signal {
	return p.events
}

// Start establishes the baseline observation and begins polling
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("poller is already running")
	}
	p.running = true

	// Baseline pass: record current observations without emitting signals,
	// so enrollment-time state does not look like change
	p.observe(false)

	go p.loop()
	return nil
}

// Stop halts polling and closes the signal channel after the current pass
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return fmt.Errorf("poller is not running")
	}

	close(p.stop)
	<-p.done
	p.running = false
	return nil
}

// loop drives the rescan ticker
func (p *Poller) loop() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.observe(true)
		case <-p.stop:
			close(p.events)
			return
		}
	}
}

// observe stats every enrolled path and, when emit is set, sends a signal for
// each difference against the previous observation
func (p *Poller) observe(emit bool) {
	files, err := p.reg.TrackedFiles()
	if err != nil {
		p.logger.Error("poll pass failed to list tracked files", zap.Error(err))
		return
	}

	for _, f := range files {
		prev, known := p.states[f.Path]

		info, err := os.Stat(f.Path)
		if err != nil {
			if emit && known && prev.present {
				p.send(Signal{Path: f.Path, Kind: models.EventRemoved})
			}
			p.states[f.Path] = fileState{}
			continue
		}

		cur := stateOf(info)
		if !known {
			p.states[f.Path] = cur
			continue
		}

		if emit {
			switch {
			case !prev.present:
				p.send(Signal{Path: f.Path, Kind: models.EventCreated})
			case !cur.modTime.Equal(prev.modTime) || cur.size != prev.size:
				p.send(Signal{Path: f.Path, Kind: models.EventModified})
			case cur.mode != prev.mode || cur.uid != prev.uid || cur.gid != prev.gid:
				p.send(Signal{Path: f.Path, Kind: models.EventChmod})
			}
		}
		p.states[f.Path] = cur
	}
}

// send delivers a signal unless the poller is stopping
func (p *Poller) send(sig Signal) {
	select {
	case p.events <- sig:
	case <-p.stop:
	}
}

// stateOf extracts the observation for one stat result
func stateOf(info os.FileInfo) fileState {
	st := fileState{
		present: true,
		modTime: info.ModTime(),
		size:    info.Size(),
		mode:    info.Mode(),
	}
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		st.uid = sys.Uid
		st.gid = sys.Gid
	}
	return st
}
