package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/deviceio"
	"github.com/nerrad567/laurabot-hal/internal/gesture"
	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// Operation names used in metrics, logs and fallback events.
const (
	OpSpeak     = "speak"
	OpListen    = "listen"
	OpMove      = "move"
	OpPose      = "pose"
	OpRecognize = "recognize_gesture"
)

// Speak sends text to the output class.
func (r *Router) Speak(ctx context.Context, text string) hal.Result[string] {
	return dispatch(ctx, r, OpSpeak, hal.ClassOutput, func(ctx context.Context, b hal.Backend) (string, error) {
		switch b := b.(type) {
		case hal.RealBackend:
			_, err := r.transact(ctx, b.Handle, deviceio.Command{Op: deviceio.OpSpeak, Text: text}, r.cfg.CallTimeout)
			return text, err
		case hal.DeviceOnlyBackend:
			_, err := r.transact(ctx, b.Handle, deviceio.Command{Op: deviceio.OpSpeak, Text: text}, r.cfg.CallTimeout)
			return text, err
		case hal.SimulatedBackend:
			return text, r.sim.Speak(ctx, text)
		default:
			return "", unsupported(b)
		}
	})
}

// Listen returns one transcript from the input class.
//
// A positive timeout is a single deadline over the whole fallback chain. The
// device is asked to listen for slightly less than timeout so its reply can
// arrive in time. An empty transcript, or the deadline passing on any tier,
// fails with hal.ErrListenTimeout and does not fall back further.
func (r *Router) Listen(ctx context.Context, timeout time.Duration) hal.Result[string] {
	timeout = max(timeout, 0)
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return dispatch(ctx, r, OpListen, hal.ClassInput, func(ctx context.Context, b hal.Backend) (string, error) {
		text, err := r.listen(ctx, b, timeout)
		if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s heard nothing within %s", hal.ErrListenTimeout, b.DeviceID(), timeout)
		}
		return text, err
	})
}

func (r *Router) listen(ctx context.Context, b hal.Backend, timeout time.Duration) (string, error) {
	var h hal.Handle
	switch b := b.(type) {
	case hal.RealBackend:
		h = b.Handle
	case hal.DeviceOnlyBackend:
		h = b.Handle
	case hal.SimulatedBackend:
		return r.sim.Listen(ctx, remaining(ctx, timeout))
	default:
		return "", unsupported(b)
	}

	window := listenWindow(remaining(ctx, timeout))
	cmd := deviceio.Command{Op: deviceio.OpListen, TimeoutMS: window.Milliseconds()}
	reply, err := r.transact(ctx, h, cmd, window+r.cfg.CallTimeout)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(reply.Text)
	if text == "" {
		return "", fmt.Errorf("%w: %s heard nothing within %s", hal.ErrListenTimeout, h.Candidate, timeout)
	}
	return text, nil
}

// remaining returns the time left before ctx's deadline, or timeout when ctx
// has none.
func remaining(ctx context.Context, timeout time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return max(time.Until(deadline), 0)
	}
	return timeout
}

// listenWindow reserves a tenth of d, at most 250ms, for the device's reply.
func listenWindow(d time.Duration) time.Duration {
	return d - min(d/10, 250*time.Millisecond)
}

// MoveActuator moves one actuator to position degrees (0 to 180).
func (r *Router) MoveActuator(ctx context.Context, actuatorID string, position int) hal.Result[int] {
	if err := validPosition(position); err != nil {
		return hal.Failed[int](err, r.boundTier(hal.ClassMotion), nil)
	}
	return dispatch(ctx, r, OpMove, hal.ClassMotion, func(ctx context.Context, b hal.Backend) (int, error) {
		return position, r.move(ctx, b, actuatorID, position)
	})
}

// MovePose moves every actuator of a named pose. Actuators are moved in
// name order; the pose falls back as a whole if any move fails.
func (r *Router) MovePose(ctx context.Context, pose string) hal.Result[map[string]int] {
	positions, ok := r.cfg.Poses[pose]
	if !ok {
		return hal.Failed[map[string]int](fmt.Errorf("%w: %q", hal.ErrUnknownPose, pose), r.boundTier(hal.ClassMotion), nil)
	}
	actuators := make([]string, 0, len(positions))
	for id, pos := range positions {
		if err := validPosition(pos); err != nil {
			return hal.Failed[map[string]int](err, r.boundTier(hal.ClassMotion), nil)
		}
		actuators = append(actuators, id)
	}
	sort.Strings(actuators)

	return dispatch(ctx, r, OpPose, hal.ClassMotion, func(ctx context.Context, b hal.Backend) (map[string]int, error) {
		for _, id := range actuators {
			if err := r.move(ctx, b, id, positions[id]); err != nil {
				return nil, fmt.Errorf("pose %s: %s: %w", pose, id, err)
			}
		}
		out := make(map[string]int, len(positions))
		for id, pos := range positions {
			out[id] = pos
		}
		return out, nil
	})
}

// RecognizeGesture asks the visual class for the current gesture.
func (r *Router) RecognizeGesture(ctx context.Context) hal.Result[gesture.Event] {
	return dispatch(ctx, r, OpRecognize, hal.ClassVisual, func(ctx context.Context, b hal.Backend) (gesture.Event, error) {
		switch b := b.(type) {
		case hal.RealBackend:
			return r.recognize(ctx, b.Handle, hal.TierReal)
		case hal.DeviceOnlyBackend:
			return r.recognize(ctx, b.Handle, hal.TierDeviceOnly)
		case hal.SimulatedBackend:
			return r.sim.NextGesture(time.Now())
		default:
			return gesture.Event{}, unsupported(b)
		}
	})
}

func (r *Router) move(ctx context.Context, b hal.Backend, actuatorID string, position int) error {
	var h hal.Handle
	switch b := b.(type) {
	case hal.RealBackend:
		h = b.Handle
	case hal.DeviceOnlyBackend:
		h = b.Handle
	case hal.SimulatedBackend:
		return r.sim.MoveServo(ctx, actuatorID, position)
	default:
		return unsupported(b)
	}
	pos := position
	_, err := r.transact(ctx, h, deviceio.Command{Op: deviceio.OpMove, Actuator: actuatorID, Position: &pos}, r.cfg.CallTimeout)
	return err
}

func (r *Router) recognize(ctx context.Context, h hal.Handle, tier hal.Tier) (gesture.Event, error) {
	reply, err := r.transact(ctx, h, deviceio.Command{Op: deviceio.OpRecognize}, r.cfg.CallTimeout)
	if err != nil {
		return gesture.Event{}, err
	}
	if strings.TrimSpace(reply.Text) == "" {
		return gesture.Event{}, ErrNoGesture
	}
	pair, err := gesture.ParsePair(reply.Text)
	if err != nil {
		return gesture.Event{}, err
	}
	name, err := gesture.Decode(pair)
	if err != nil {
		return gesture.Event{}, err
	}
	return gesture.NewEvent(name, time.Now(), tier)
}

type transactResult struct {
	reply deviceio.Reply
	err   error
}

// transact runs one device exchange bounded by limit. It returns when the
// limit elapses even if the driver ignores its context.
func (r *Router) transact(ctx context.Context, h hal.Handle, cmd deviceio.Command, limit time.Duration) (deviceio.Reply, error) {
	callCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan transactResult, 1)
	go func() {
		reply, err := deviceio.Transact(callCtx, r.io, h, cmd)
		done <- transactResult{reply: reply, err: err}
	}()

	select {
	case res := <-done:
		return res.reply, res.err
	case <-callCtx.Done():
		return deviceio.Reply{}, fmt.Errorf("%w: %s %s: %w", hal.ErrDeviceReadFailure, h.Candidate, cmd.Op, callCtx.Err())
	}
}

func (r *Router) boundTier(class hal.CapabilityClass) hal.Tier {
	b, err := r.registry.Lookup(class)
	if err != nil {
		return hal.TierSimulated
	}
	return b.Tier()
}

func validPosition(position int) error {
	if position < 0 || position > 180 {
		return fmt.Errorf("%w: %d", hal.ErrInvalidPosition, position)
	}
	return nil
}

func unsupported(b hal.Backend) error {
	return fmt.Errorf("%w: unsupported backend %T", hal.ErrNoBackendAvailable, b)
}
