package escalation

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/plantwatch/alert"
)

// FireFunc is invoked when a delayed step fires. The receiver is expected to
// state-check the alert before acting; a fire that lost a race with
// acknowledge or clear must be treated as a no-op.
type FireFunc func(alertID string, level int, channels []string)

// arena holds the pending timers of one alert, keyed by escalation level
type arena struct {
	timers   map[int]*time.Timer
	lastStep Step
	maxLevel int
}

// Scheduler arms per-alert escalation timers according to the severity
// policies. Every armed step is independently cancellable; Cancel stops all
// pending steps for an alert and is safe for unknown ids and after fires.
// Scheduler implements alert.Escalator.
type Scheduler struct {
	mu       sync.Mutex
	arenas   map[string]*arena
	policies map[alert.Severity]Policy
	fire     FireFunc
	logger   *slog.Logger
}

// NewScheduler creates a scheduler over the given policies. The fire callback
// is set later via SetFire so the scheduler can be constructed before the
// lifecycle manager that consumes its fires.
func NewScheduler(policies map[alert.Severity]Policy, logger *slog.Logger) *Scheduler {
	if policies == nil {
		policies = DefaultPolicies()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		arenas:   make(map[string]*arena),
		policies: policies,
		logger:   logger.With("component", "escalation"),
	}
}

// SetFire installs the fire callback. Must be called before the first Arm.
func (s *Scheduler) SetFire(fire FireFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = fire
}

// ImmediateChannels returns the channels dispatched at alert creation for
// the given severity.
func (s *Scheduler) ImmediateChannels(severity alert.Severity) []string {
	policy, ok := s.policies[severity]
	if !ok {
		return nil
	}
	out := make([]string, len(policy.Immediate))
	copy(out, policy.Immediate)
	return out
}

// Arm schedules all delayed steps of the alert's severity policy. Delays are
// measured from the moment of arming, matching the policy's offsets from
// alert creation. Arming an already-armed alert id replaces its arena.
func (s *Scheduler) Arm(a alert.Alert) {
	policy, ok := s.policies[a.Severity]
	if !ok || len(policy.Steps) == 0 || policy.MaxLevel <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.arenas[a.ID]; ok {
		for _, t := range old.timers {
			t.Stop()
		}
	}

	ar := &arena{
		timers:   make(map[int]*time.Timer),
		lastStep: policy.Steps[len(policy.Steps)-1],
		maxLevel: policy.MaxLevel,
	}
	s.arenas[a.ID] = ar

	for i, step := range policy.Steps {
		level := i + 1
		if level > policy.MaxLevel {
			break
		}
		s.scheduleLocked(a.ID, ar, level, step, level == len(policy.Steps))
	}

	s.logger.Debug("Armed escalation",
		"alert_id", a.ID,
		"severity", a.Severity,
		"steps", len(ar.timers))
}

// scheduleLocked arms one step timer. Caller holds the lock.
func (s *Scheduler) scheduleLocked(alertID string, ar *arena, level int, step Step, last bool) {
	ar.timers[level] = time.AfterFunc(step.Delay, func() {
		s.onFire(alertID, level, step.Channels, last)
	})
}

// onFire runs on the timer goroutine when a step's delay elapses
func (s *Scheduler) onFire(alertID string, level int, channels []string, last bool) {
	s.mu.Lock()
	ar, ok := s.arenas[alertID]
	if !ok || ar.timers[level] == nil {
		// Cancelled between fire and lock acquisition
		s.mu.Unlock()
		return
	}
	delete(ar.timers, level)

	// The last listed step repeats at its own delay until the level cap
	if last && level < ar.maxLevel {
		s.scheduleLocked(alertID, ar, level+1, ar.lastStep, true)
	} else if len(ar.timers) == 0 {
		delete(s.arenas, alertID)
	}
	fire := s.fire
	s.mu.Unlock()

	if level >= ar.maxLevel {
		s.logger.Warn("Escalation level cap reached", "alert_id", alertID, "level", level)
	}
	if fire != nil {
		fire(alertID, level, channels)
	}
}

// Cancel stops every pending step for the alert and drops its arena. Safe to
// call for unknown ids and after steps have fired.
func (s *Scheduler) Cancel(alertID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ar, ok := s.arenas[alertID]
	if !ok {
		return
	}
	for _, t := range ar.timers {
		t.Stop()
	}
	delete(s.arenas, alertID)
	s.logger.Debug("Cancelled pending escalation", "alert_id", alertID)
}

// Pending returns the number of alerts with at least one armed step
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.arenas)
}
