// Package telemetry persists per-backend rolling stats and a bounded
// routing decision log. The store is a single-writer goroutine fronted by a
// command channel; readers receive copies, so last-write-wins observation
// is acceptable while CallCount stays monotonic.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/codeready-toolchain/modelmux/pkg/config"
)

const (
	// TelemetryFile holds the backend-name → telemetry map.
	TelemetryFile = ".model-telemetry.json"
	// HistoryFile holds the FIFO-truncated decision log.
	HistoryFile = ".routing-history.json"

	// DecisionLogLimit bounds the decision log length.
	DecisionLogLimit = 100
)

type updateCmd struct {
	backend   string
	latencyMS float64
	success   bool
}

type decisionCmd struct {
	record DecisionRecord
}

type snapshotCmd struct {
	reply chan Snapshot
}

// SeedsFromRegistry derives initial telemetry seeds from the static
// backend descriptor table.
func SeedsFromRegistry(registry *config.BackendRegistry) []Seed {
	descriptors := registry.All()
	seeds := make([]Seed, 0, len(descriptors))
	for _, d := range descriptors {
		seeds = append(seeds, Seed{
			Name:             d.Name,
			CostPer1KTokens:  d.BaseCostPer1KTokens,
			CapabilityTier:   d.CapabilityTier,
			NominalLatencyMS: d.NominalMaxLatencyMS,
		})
	}
	return seeds
}

// Seed is the static descriptor data used to initialize telemetry for a
// backend with no observed calls yet.
type Seed struct {
	Name             string
	CostPer1KTokens  float64
	CapabilityTier   config.CapabilityTier
	NominalLatencyMS float64
}

// Store owns the telemetry map and decision log.
type Store struct {
	dir      string
	commands chan any
	logger   *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Writer-goroutine-owned state. Never touched outside run().
	backends  map[string]BackendTelemetry
	decisions []DecisionRecord
}

// NewStore loads persisted state from dir (creating initial state from
// seeds when files are absent) and starts the writer goroutine.
func NewStore(dir string, seeds []Seed) (*Store, error) {
	s := &Store{
		dir:      dir,
		commands: make(chan any, 64),
		logger:   slog.Default().With("component", "telemetry-store"),
		stopCh:   make(chan struct{}),
		backends: make(map[string]BackendTelemetry),
	}

	if err := s.load(seeds); err != nil {
		return nil, err
	}

	s.wg.Add(1)
	go s.run()
	return s, nil
}

// Update folds one observed call into the backend's running stats and
// persists. Unknown backends are created on first observation.
func (s *Store) Update(backend string, latencyMS float64, success bool) {
	s.send(updateCmd{backend: backend, latencyMS: latencyMS, success: success})
}

// RecordDecision appends to the decision log, dropping the oldest entry
// beyond DecisionLogLimit, and persists.
func (s *Store) RecordDecision(record DecisionRecord) {
	s.send(decisionCmd{record: record})
}

// Snapshot returns a consistent copy of telemetry and the decision log.
func (s *Store) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case s.commands <- snapshotCmd{reply: reply}:
		return <-reply
	case <-s.stopCh:
		// Store closed; return empty rather than blocking forever.
		return Snapshot{Backends: map[string]BackendTelemetry{}}
	}
}

// Close stops the writer goroutine after draining queued commands.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Store) send(cmd any) {
	select {
	case s.commands <- cmd:
	case <-s.stopCh:
		s.logger.Warn("Telemetry store closed, dropping command")
	}
}

// run is the single-writer loop.
func (s *Store) run() {
	defer s.wg.Done()

	for {
		select {
		case cmd := <-s.commands:
			s.handle(cmd)
		case <-s.stopCh:
			// Drain anything already queued before exiting.
			for {
				select {
				case cmd := <-s.commands:
					s.handle(cmd)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) handle(cmd any) {
	switch c := cmd.(type) {
	case updateCmd:
		s.applyUpdate(c)
		s.persistTelemetry()
	case decisionCmd:
		s.decisions = append(s.decisions, c.record)
		if len(s.decisions) > DecisionLogLimit {
			s.decisions = s.decisions[len(s.decisions)-DecisionLogLimit:]
		}
		s.persistHistory()
	case snapshotCmd:
		c.reply <- s.copyState()
	}
}

func (s *Store) applyUpdate(c updateCmd) {
	t, ok := s.backends[c.backend]
	if !ok {
		t = BackendTelemetry{Name: c.backend, SuccessRate: 1.0}
	}

	t.CallCount++
	n := float64(t.CallCount)
	// Running arithmetic means. An EMA would weight recent calls more but
	// the scoring formula treats these as point estimates either way.
	t.AvgLatencyMS = (t.AvgLatencyMS*(n-1) + c.latencyMS) / n
	observed := 0.0
	if c.success {
		observed = 1.0
	}
	t.SuccessRate = (t.SuccessRate*(n-1) + observed) / n
	t.LastLatencyMS = c.latencyMS
	t.LastUpdated = time.Now()

	s.backends[c.backend] = t
}

func (s *Store) copyState() Snapshot {
	backends := make(map[string]BackendTelemetry, len(s.backends))
	for name, t := range s.backends {
		backends[name] = t
	}
	decisions := make([]DecisionRecord, len(s.decisions))
	copy(decisions, s.decisions)
	return Snapshot{Backends: backends, Decisions: decisions}
}

// load reads both state files, seeding initial telemetry for any backend
// missing from the persisted map. Unknown JSON fields are ignored for
// forward compatibility.
func (s *Store) load(seeds []Seed) error {
	if err := s.readJSON(TelemetryFile, &s.backends); err != nil {
		return err
	}
	if err := s.readJSON(HistoryFile, &s.decisions); err != nil {
		return err
	}
	if len(s.decisions) > DecisionLogLimit {
		s.decisions = s.decisions[len(s.decisions)-DecisionLogLimit:]
	}

	for _, seed := range seeds {
		if existing, ok := s.backends[seed.Name]; ok {
			// Keep observed stats; refresh static attributes from config.
			existing.CostPer1KTokens = seed.CostPer1KTokens
			existing.CapabilityTier = seed.CapabilityTier
			s.backends[seed.Name] = existing
			continue
		}
		s.backends[seed.Name] = BackendTelemetry{
			Name:            seed.Name,
			CostPer1KTokens: seed.CostPer1KTokens,
			CapabilityTier:  seed.CapabilityTier,
			SuccessRate:     1.0,
			AvgLatencyMS:    seed.NominalLatencyMS,
			CallCount:       0,
		}
	}
	return nil
}

func (s *Store) readJSON(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	return nil
}

// persistTelemetry writes the telemetry map. Write failures are logged and
// never fatal; the in-memory state remains authoritative.
func (s *Store) persistTelemetry() {
	s.writeJSON(TelemetryFile, s.backends)
}

func (s *Store) persistHistory() {
	s.writeJSON(HistoryFile, s.decisions)
}

func (s *Store) writeJSON(name string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.logger.Error("Failed to encode telemetry state", "file", name, "error", err)
		return
	}
	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Error("Failed to write telemetry state", "file", name, "error", err)
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.logger.Error("Failed to replace telemetry state", "file", name, "error", err)
	}
}
