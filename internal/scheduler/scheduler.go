// Package scheduler turns register updates into bounded-rate view commits.
//
// Incoming entries are compared by their formatted display value against what the view
// currently shows. Differences are staged per device and committed at the next frame,
// at most once per device per frame.
package scheduler

import (
	"sort"
	"time"

	"modbus_console/internal/logger"
	"modbus_console/internal/loop"
	"modbus_console/internal/metrics"
	"modbus_console/internal/models"
)

// DefaultFrame is the commit interval, roughly one display refresh.
const DefaultFrame = 16 * time.Millisecond

// Formatter renders the display value of a register.
type Formatter interface {
	Format(deviceID string, e models.RegisterEntry) string
}

// Committer applies a change-set to the view.
type Committer interface {
	Commit(deviceID string, changes []models.Change)
}

// Scheduler owns the rendered state and the staged change-sets. Loop-owned.
type Scheduler struct {
	loop    loop.Loop
	format  Formatter
	out     Committer
	frame   time.Duration
	log     *logger.Logger
	metrics *metrics.Metrics

	rendered map[string]map[models.RegisterKey]string
	staged   map[string]map[models.RegisterKey]models.Change
	order    []string
	timer    loop.Timer
}

// New returns a Scheduler committing to out every frame.
func New(l loop.Loop, f Formatter, out Committer, frame time.Duration, log *logger.Logger, m *metrics.Metrics) *Scheduler {
	if frame <= 0 {
		frame = DefaultFrame
	}
	return &Scheduler{
		loop:     l,
		format:   f,
		out:      out,
		frame:    frame,
		log:      logger.OrNop(log).Named("scheduler"),
		metrics:  m,
		rendered: make(map[string]map[models.RegisterKey]string),
		staged:   make(map[string]map[models.RegisterKey]models.Change),
	}
}

// Diff stages every entry whose formatted value differs from the rendered one and returns
// the number of changes now staged for the device. An entry that formats to the rendered
// value drops any change staged earlier for the same key.
func (s *Scheduler) Diff(deviceID string, entries []models.RegisterEntry) int {
	rendered := s.rendered[deviceID]
	staged := s.staged[deviceID]

	for _, e := range entries {
		key := e.Key()
		display := s.format.Format(deviceID, e)
		if cur, ok := rendered[key]; ok && cur == display {
			if staged != nil {
				delete(staged, key)
			}
			continue
		}
		if staged == nil {
			staged = make(map[models.RegisterKey]models.Change)
			s.staged[deviceID] = staged
			s.order = append(s.order, deviceID)
		}
		staged[key] = models.Change{Key: key, Raw: e.Value, Display: display}
	}

	if len(staged) > 0 && s.timer == nil {
		s.timer = s.loop.AfterFunc(s.frame, s.commit)
	}
	return len(staged)
}

// commit flushes one change-set per device, in staging order.
func (s *Scheduler) commit() {
	s.timer = nil
	order, staged := s.order, s.staged
	s.order = nil
	s.staged = make(map[string]map[models.RegisterKey]models.Change)

	for _, id := range order {
		set := staged[id]
		if len(set) == 0 {
			continue
		}
		changes := make([]models.Change, 0, len(set))
		for _, ch := range set {
			changes = append(changes, ch)
		}
		sort.Slice(changes, func(i, j int) bool { return changes[i].Key.Less(changes[j].Key) })

		rendered := s.rendered[id]
		if rendered == nil {
			rendered = make(map[models.RegisterKey]string, len(changes))
			s.rendered[id] = rendered
		}
		for _, ch := range changes {
			rendered[ch.Key] = ch.Display
		}
		s.out.Commit(id, changes)
		s.metrics.ObserveCommit(id, len(changes))
		s.log.Debugw("scheduler_commit", "device", id, "changes", len(changes))
	}
}

// Rendered returns the display value currently committed for a register.
func (s *Scheduler) Rendered(deviceID string, k models.RegisterKey) (string, bool) {
	v, ok := s.rendered[deviceID][k]
	return v, ok
}

// Staged returns the number of changes waiting for the next frame.
func (s *Scheduler) Staged(deviceID string) int {
	return len(s.staged[deviceID])
}

// Stop cancels the pending frame and drops staged changes.
func (s *Scheduler) Stop() {
	s.timer = loop.StopTimer(s.timer)
	s.order = nil
	s.staged = make(map[string]map[models.RegisterKey]models.Change)
}
