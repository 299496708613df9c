package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/gesture"
	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// Actuator position limits in degrees.
const (
	MinPosition = 0
	MaxPosition = 180
)

// SpokenLine is one utterance sent to the simulated speaker.
type SpokenLine struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Listen simulates voice input. After the configured latency it returns the
// next demo phrase, cycling through the list.
//
// Errors:
//   - hal.ErrSimulatedDeviceDown while the input class is failed
//   - hal.ErrListenTimeout when the latency exceeds timeout, or when no
//     demo phrases are configured
//   - ctx.Err() if the caller gives up first
func (s *Substrate) Listen(ctx context.Context, timeout time.Duration) (string, error) {
	if err := s.classDown(hal.ClassInput); err != nil {
		return "", err
	}

	wait := s.opts.ListenLatency
	timedOut := timeout > 0 && wait > timeout
	if timedOut {
		wait = timeout
	}

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	if timedOut || len(s.opts.DemoPhrases) == 0 {
		return "", fmt.Errorf("%w: nothing heard within %s", hal.ErrListenTimeout, timeout)
	}

	s.voiceMu.Lock()
	phrase := s.opts.DemoPhrases[s.phraseIdx%len(s.opts.DemoPhrases)]
	s.phraseIdx++
	s.voiceMu.Unlock()

	return phrase, nil
}

// Speak records text in the spoken log.
func (s *Substrate) Speak(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.classDown(hal.ClassOutput); err != nil {
		return err
	}

	s.voiceMu.Lock()
	s.spoken.Push(SpokenLine{Text: text, At: s.clock()})
	s.voiceMu.Unlock()
	return nil
}

// Spoken returns up to n spoken lines, newest first. n <= 0 returns all.
func (s *Substrate) Spoken(n int) []SpokenLine {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	return s.spoken.Newest(n)
}

// MoveServo sets a simulated actuator position in degrees.
func (s *Substrate) MoveServo(ctx context.Context, actuatorID string, position int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if position < MinPosition || position > MaxPosition {
		return fmt.Errorf("%w: %d", hal.ErrInvalidPosition, position)
	}
	if err := s.classDown(hal.ClassMotion); err != nil {
		return err
	}

	s.voiceMu.Lock()
	s.positions[actuatorID] = position
	s.voiceMu.Unlock()
	return nil
}

// Positions returns the last commanded position of every actuator.
func (s *Substrate) Positions() map[string]int {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()

	out := make(map[string]int, len(s.positions))
	for id, pos := range s.positions {
		out[id] = pos
	}
	return out
}

// Script replaces the scripted gesture queue. NextGesture pops scripted
// names before drawing at random. An empty call clears the queue.
func (s *Substrate) Script(names ...string) error {
	for _, name := range names {
		if _, err := gesture.Encode(name); err != nil {
			return err
		}
	}

	s.voiceMu.Lock()
	s.script = append([]string(nil), names...)
	s.voiceMu.Unlock()
	return nil
}

// ReplayDemo queues the configured demo gesture sequence.
func (s *Substrate) ReplayDemo() error {
	return s.Script(s.opts.DemoGestures...)
}

// Scripted returns how many scripted gestures remain.
func (s *Substrate) Scripted() int {
	s.voiceMu.Lock()
	defer s.voiceMu.Unlock()
	return len(s.script)
}

// NextGesture returns the next scripted gesture, or a uniform draw from the
// gesture table using the seeded generator.
func (s *Substrate) NextGesture(now time.Time) (gesture.Event, error) {
	if err := s.classDown(hal.ClassVisual); err != nil {
		return gesture.Event{}, err
	}

	s.voiceMu.Lock()
	var name string
	if len(s.script) > 0 {
		name = s.script[0]
		s.script = s.script[1:]
	} else {
		names := gesture.Names()
		name = names[s.gestureRNG.IntN(len(names))]
	}
	s.voiceMu.Unlock()

	return gesture.NewEvent(name, now, hal.TierSimulated)
}
