package probe

import (
	"fmt"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
)

// Attempt outcomes.
const (
	OutcomeResponsive = "responsive"
	OutcomeTimeout    = "timeout"
	OutcomeAbsent     = "absent"
	OutcomeError      = "error"
)

// ClassPlan lists the candidates to try for one class.
type ClassPlan struct {
	Class      hal.CapabilityClass
	Timeout    time.Duration
	Real       []hal.Candidate
	DeviceOnly []hal.Candidate
}

// Plan is the probe plan for every class, keyed by class.
type Plan map[hal.CapabilityClass]ClassPlan

// Attempt records one candidate tried during a probe.
type Attempt struct {
	Candidate hal.Candidate `json:"candidate"`
	Tier      hal.Tier      `json:"tier"`
	Outcome   string        `json:"outcome"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// Outcome is the probe result for one class.
type Outcome struct {
	Class    hal.CapabilityClass `json:"class"`
	Tier     hal.Tier            `json:"tier"`
	DeviceID string              `json:"device_id"`
	Fallback string              `json:"fallback,omitempty"`
	Attempts []Attempt           `json:"attempts"`
	Backend  hal.Backend         `json:"-"`
}

// Report is the result of one probe run.
type Report struct {
	ID        string        `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Outcomes  []Outcome     `json:"outcomes"`
}

// Outcome returns the outcome for class.
func (r Report) Outcome(class hal.CapabilityClass) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Class == class {
			return o, true
		}
	}
	return Outcome{}, false
}

// PlanFromConfig builds a probe plan from hardware configuration.
func PlanFromConfig(cfg config.HardwareConfig) (Plan, error) {
	plan := make(Plan, len(hal.Classes()))
	for class, cc := range cfg.Classes() {
		cp := ClassPlan{Class: class, Timeout: cc.Timeout}
		for _, raw := range cc.Real {
			c, err := hal.ParseCandidate(raw)
			if err != nil {
				return nil, fmt.Errorf("%s real candidates: %w", class, err)
			}
			cp.Real = append(cp.Real, c)
		}
		for _, raw := range cc.DeviceOnly {
			c, err := hal.ParseCandidate(raw)
			if err != nil {
				return nil, fmt.Errorf("%s device-only candidates: %w", class, err)
			}
			cp.DeviceOnly = append(cp.DeviceOnly, c)
		}
		plan[class] = cp
	}
	return plan, nil
}

// clone returns a deep copy so discovery can extend candidate lists freely.
// longestTimeout returns the largest class timeout, or defaultClassTimeout
// when no class sets one.
func (p Plan) longestTimeout() time.Duration {
	longest := time.Duration(0)
	for _, cp := range p {
		longest = max(longest, cp.Timeout)
	}
	if longest <= 0 {
		return defaultClassTimeout
	}
	return longest
}

func (p Plan) clone() Plan {
	out := make(Plan, len(p))
	for c, cp := range p {
		cp.Real = append([]hal.Candidate(nil), cp.Real...)
		cp.DeviceOnly = append([]hal.Candidate(nil), cp.DeviceOnly...)
		out[c] = cp
	}
	return out
}

// appendUnique appends candidates not already present.
func appendUnique(list []hal.Candidate, extra ...hal.Candidate) []hal.Candidate {
	for _, e := range extra {
		dup := false
		for _, c := range list {
			if c == e {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, e)
		}
	}
	return list
}
