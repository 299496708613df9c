package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/laurabot-hal/internal/device"
	"github.com/nerrad567/laurabot-hal/internal/deviceio"
	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/config"
	"github.com/nerrad567/laurabot-hal/internal/simulation"
)

type mode int

const (
	answer mode = iota
	broken
	hang // ignores its context entirely
)

// scriptedIO answers device commands per handle id.
type scriptedIO struct {
	modes   map[string]mode
	replies map[string]deviceio.Reply // keyed by op
	release chan struct{}

	mu       sync.Mutex
	commands map[string][]deviceio.Command
}

func newScriptedIO(t *testing.T) *scriptedIO {
	s := &scriptedIO{
		modes:    make(map[string]mode),
		replies:  make(map[string]deviceio.Reply),
		release:  make(chan struct{}),
		commands: make(map[string][]deviceio.Command),
	}
	t.Cleanup(func() { close(s.release) })
	return s
}

func (s *scriptedIO) Open(_ context.Context, class hal.CapabilityClass, c hal.Candidate) (hal.Handle, error) {
	return hal.Handle{ID: c.Address, Class: class, Candidate: c}, nil
}

func (s *scriptedIO) Write(_ context.Context, h hal.Handle, payload []byte) error {
	var cmd deviceio.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return err
	}
	s.mu.Lock()
	s.commands[h.ID] = append(s.commands[h.ID], cmd)
	s.mu.Unlock()
	return nil
}

func (s *scriptedIO) Read(_ context.Context, h hal.Handle) ([]byte, error) {
	switch s.modes[h.ID] {
	case broken:
		return nil, errors.New("port vanished")
	case hang:
		<-s.release
		return nil, errors.New("released")
	}
	s.mu.Lock()
	cmds := s.commands[h.ID]
	last := cmds[len(cmds)-1]
	s.mu.Unlock()

	reply, ok := s.replies[last.Op]
	if !ok {
		reply = deviceio.Reply{OK: true}
	}
	return json.Marshal(reply)
}

func (s *scriptedIO) Close(hal.Handle) error { return nil }

func (s *scriptedIO) sent(id string) []deviceio.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]deviceio.Command(nil), s.commands[id]...)
}

func handle(class hal.CapabilityClass, id string) hal.Handle {
	return hal.Handle{ID: id, Class: class, Candidate: hal.Candidate{Kind: deviceio.KindSerial, Address: id}}
}

type fixture struct {
	registry *device.Registry
	io       *scriptedIO
	sim      *simulation.Substrate
	router   *Router
}

func newFixture(t *testing.T, mutate func(*simulation.Options)) *fixture {
	t.Helper()
	cfg := config.Default()
	opts := simulation.OptionsFromConfig(cfg.Simulation)
	opts.ListenLatency = time.Millisecond
	if mutate != nil {
		mutate(&opts)
	}

	f := &fixture{
		registry: device.NewRegistry(opts.Seed),
		io:       newScriptedIO(t),
		sim:      simulation.New(opts),
	}
	f.router = New(f.registry, f.io, f.sim, Config{
		CallTimeout: 100 * time.Millisecond,
		Poses:       cfg.Hardware.Poses,
	})
	return f
}

func (f *fixture) bind(t *testing.T, class hal.CapabilityClass, b hal.Backend) {
	t.Helper()
	if _, err := f.registry.Rebind(class, b); err != nil {
		t.Fatalf("Rebind(%s) error = %v", class, err)
	}
}

func assertAttempted(t *testing.T, got []hal.Tier, want ...hal.Tier) {
	t.Helper()
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Attempted = %v, want %v", got, want)
	}
}

func TestRecognizeGesture_Simulated(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.sim.Script("Fire"); err != nil {
		t.Fatalf("Script() error = %v", err)
	}

	res := f.router.RecognizeGesture(context.Background())
	if !res.Success {
		t.Fatalf("RecognizeGesture() failed: %s (%v)", res.Reason, res.Err)
	}
	if res.Data.Name != "Fire" || res.Data.Left.String() != "01100" || res.Data.Right.String() != "01100" {
		t.Errorf("Data = %+v, want Fire 01100/01100", res.Data)
	}
	if res.MethodUsed != hal.TierSimulated || res.Data.Source != hal.TierSimulated {
		t.Errorf("MethodUsed = %q, Source = %q, want simulated", res.MethodUsed, res.Data.Source)
	}
	assertAttempted(t, res.Attempted, hal.TierSimulated)
}

func TestRecognizeGesture_Real(t *testing.T) {
	f := newFixture(t, nil)
	f.io.replies[deviceio.OpRecognize] = deviceio.Reply{OK: true, Text: "00001,01000"}
	f.bind(t, hal.ClassVisual, hal.RealBackend{Handle: handle(hal.ClassVisual, "cam")})

	res := f.router.RecognizeGesture(context.Background())
	if !res.Success || res.Data.Name != "Danger" {
		t.Fatalf("RecognizeGesture() = %+v, want Danger", res)
	}
	if res.MethodUsed != hal.TierReal {
		t.Errorf("MethodUsed = %q, want real", res.MethodUsed)
	}
}

func TestRecognizeGesture_NothingSeen(t *testing.T) {
	f := newFixture(t, nil)
	f.io.replies[deviceio.OpRecognize] = deviceio.Reply{OK: true}
	f.bind(t, hal.ClassVisual, hal.RealBackend{Handle: handle(hal.ClassVisual, "cam")})

	res := f.router.RecognizeGesture(context.Background())
	if res.Success || !errors.Is(res.Err, ErrNoGesture) {
		t.Fatalf("RecognizeGesture() = %+v, want ErrNoGesture", res)
	}
	assertAttempted(t, res.Attempted, hal.TierReal)
}

func TestSpeak_FallbackIsNotPersisted(t *testing.T) {
	f := newFixture(t, nil)
	f.io.modes["speaker-node"] = broken
	f.bind(t, hal.ClassOutput, hal.RealBackend{
		Handle:   handle(hal.ClassOutput, "speaker-node"),
		Fallback: &hal.DeviceOnlyBackend{Handle: handle(hal.ClassOutput, "espeak")},
	})

	var events []FallbackEvent
	f.router.OnFallback(func(ev FallbackEvent) { events = append(events, ev) })

	for i := 0; i < 2; i++ {
		res := f.router.Speak(context.Background(), "hello")
		if !res.Success {
			t.Fatalf("Speak() #%d failed: %s", i, res.Reason)
		}
		if res.MethodUsed != hal.TierDeviceOnly {
			t.Errorf("MethodUsed = %q, want device_only", res.MethodUsed)
		}
		assertAttempted(t, res.Attempted, hal.TierReal, hal.TierDeviceOnly)
		if !res.Fallback() {
			t.Error("Fallback() = false, want true")
		}

		if got := f.registry.Get(hal.ClassOutput).Tier(); got != hal.TierReal {
			t.Fatalf("registry tier after fallback = %q, want real", got)
		}
	}

	if n := len(f.io.sent("speaker-node")); n != 2 {
		t.Errorf("real device tried %d times, want 2 (once per call)", n)
	}
	if len(events) != 2 || events[0].From != hal.TierReal || events[0].To != hal.TierDeviceOnly {
		t.Errorf("fallback events = %+v, want two real->device_only", events)
	}
}

func TestSpeak_FallsThroughToSimulated(t *testing.T) {
	f := newFixture(t, nil)
	f.io.modes["speaker-node"] = broken
	f.bind(t, hal.ClassOutput, hal.RealBackend{Handle: handle(hal.ClassOutput, "speaker-node")})

	res := f.router.Speak(context.Background(), "good job")
	if !res.Success || res.MethodUsed != hal.TierSimulated {
		t.Fatalf("Speak() = %+v, want simulated success", res)
	}
	assertAttempted(t, res.Attempted, hal.TierReal, hal.TierSimulated)

	spoken := f.sim.Spoken(1)
	if len(spoken) != 1 || spoken[0].Text != "good job" {
		t.Errorf("Spoken() = %+v, want [good job]", spoken)
	}
}

func TestSpeak_HungDriverIsBounded(t *testing.T) {
	f := newFixture(t, nil)
	f.io.modes["speaker-node"] = hang
	f.bind(t, hal.ClassOutput, hal.DeviceOnlyBackend{Handle: handle(hal.ClassOutput, "speaker-node")})

	start := time.Now()
	res := f.router.Speak(context.Background(), "hello")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Speak() took %v with a hung driver", elapsed)
	}
	if !res.Success || res.MethodUsed != hal.TierSimulated {
		t.Errorf("Speak() = %+v, want simulated success", res)
	}
}

func TestSpeak_SimulatedDown(t *testing.T) {
	f := newFixture(t, nil)
	_ = f.sim.InjectFailure("output", time.Minute)

	res := f.router.Speak(context.Background(), "hello")
	if res.Success || !errors.Is(res.Err, hal.ErrSimulatedDeviceDown) {
		t.Fatalf("Speak() = %+v, want ErrSimulatedDeviceDown", res)
	}
	if res.Reason == "" {
		t.Error("failed result should carry a reason")
	}
}

func TestListen(t *testing.T) {
	tests := []struct {
		name      string
		bind      hal.Backend
		reply     *deviceio.Reply
		latency   time.Duration
		timeout   time.Duration
		want      string
		wantErr   error
		attempted []hal.Tier
	}{
		{
			name:      "simulated phrase",
			latency:   time.Millisecond,
			timeout:   time.Second,
			want:      "hello laura",
			attempted: []hal.Tier{hal.TierSimulated},
		},
		{
			name:      "simulated timeout",
			latency:   200 * time.Millisecond,
			timeout:   10 * time.Millisecond,
			wantErr:   hal.ErrListenTimeout,
			attempted: []hal.Tier{hal.TierSimulated},
		},
		{
			name:      "real transcript",
			bind:      hal.RealBackend{Handle: handle(hal.ClassInput, "voice-node")},
			reply:     &deviceio.Reply{OK: true, Text: " what is seven times six "},
			timeout:   time.Second,
			want:      "what is seven times six",
			attempted: []hal.Tier{hal.TierReal},
		},
		{
			name:      "real silence is not fallen back",
			bind:      hal.RealBackend{Handle: handle(hal.ClassInput, "voice-node")},
			reply:     &deviceio.Reply{OK: true},
			timeout:   time.Second,
			wantErr:   hal.ErrListenTimeout,
			attempted: []hal.Tier{hal.TierReal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(o *simulation.Options) { o.ListenLatency = tt.latency })
			if tt.reply != nil {
				f.io.replies[deviceio.OpListen] = *tt.reply
			}
			if tt.bind != nil {
				f.bind(t, hal.ClassInput, tt.bind)
			}

			res := f.router.Listen(context.Background(), tt.timeout)
			assertAttempted(t, res.Attempted, tt.attempted...)
			if tt.wantErr != nil {
				if res.Success || !errors.Is(res.Err, tt.wantErr) {
					t.Fatalf("Listen() = %+v, want %v", res, tt.wantErr)
				}
				return
			}
			if !res.Success || res.Data != tt.want {
				t.Fatalf("Listen() = %+v, want %q", res, tt.want)
			}
		})
	}
}

func TestListen_SendsTimeoutToDevice(t *testing.T) {
	f := newFixture(t, nil)
	f.io.replies[deviceio.OpListen] = deviceio.Reply{OK: true, Text: "hi"}
	f.bind(t, hal.ClassInput, hal.DeviceOnlyBackend{Handle: handle(hal.ClassInput, "mic")})

	f.router.Listen(context.Background(), 1500*time.Millisecond)

	// The device listens for the timeout less a reply margin of 150ms.
	sent := f.io.sent("mic")
	if len(sent) != 1 || sent[0].Op != deviceio.OpListen || sent[0].TimeoutMS < 1300 || sent[0].TimeoutMS > 1350 {
		t.Errorf("sent = %+v, want one listen with timeout_ms in [1300, 1350]", sent)
	}
}

func TestListen_TimeoutBoundsFallbackChain(t *testing.T) {
	const timeout = 300 * time.Millisecond

	tests := []struct {
		name      string
		modes     map[string]mode
		bind      hal.Backend
		wantErr   error
		want      string
		method    hal.Tier
		attempted []hal.Tier
	}{
		{
			name:  "hung real microphone",
			modes: map[string]mode{"voice-node": hang},
			bind: hal.RealBackend{
				Handle:   handle(hal.ClassInput, "voice-node"),
				Fallback: &hal.DeviceOnlyBackend{Handle: handle(hal.ClassInput, "mic")},
			},
			wantErr:   hal.ErrListenTimeout,
			method:    hal.TierReal,
			attempted: []hal.Tier{hal.TierReal},
		},
		{
			name:      "hung device-only microphone",
			modes:     map[string]mode{"mic": hang},
			bind:      hal.DeviceOnlyBackend{Handle: handle(hal.ClassInput, "mic")},
			wantErr:   hal.ErrListenTimeout,
			method:    hal.TierDeviceOnly,
			attempted: []hal.Tier{hal.TierDeviceOnly},
		},
		{
			name:      "broken microphone still falls back",
			modes:     map[string]mode{"voice-node": broken},
			bind:      hal.RealBackend{Handle: handle(hal.ClassInput, "voice-node")},
			want:      "hello laura",
			method:    hal.TierSimulated,
			attempted: []hal.Tier{hal.TierReal, hal.TierSimulated},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			for id, m := range tt.modes {
				f.io.modes[id] = m
			}
			f.bind(t, hal.ClassInput, tt.bind)
			var events []FallbackEvent
			f.router.OnFallback(func(ev FallbackEvent) { events = append(events, ev) })

			start := time.Now()
			res := f.router.Listen(context.Background(), timeout)
			if elapsed := time.Since(start); elapsed > timeout+100*time.Millisecond {
				t.Errorf("Listen() took %v, want at most %v", elapsed, timeout)
			}
			if res.MethodUsed != tt.method {
				t.Errorf("MethodUsed = %q, want %q", res.MethodUsed, tt.method)
			}
			assertAttempted(t, res.Attempted, tt.attempted...)

			if tt.wantErr != nil {
				if res.Success || !errors.Is(res.Err, tt.wantErr) {
					t.Fatalf("Listen() = %+v, want %v", res, tt.wantErr)
				}
				if len(events) != 0 {
					t.Errorf("fallback events = %+v, want none after the deadline", events)
				}
				return
			}
			if !res.Success || res.Data != tt.want {
				t.Fatalf("Listen() = %+v, want %q", res, tt.want)
			}
		})
	}
}

func TestListen_CallerTimeoutWithoutDeadline(t *testing.T) {
	f := newFixture(t, nil)
	f.io.replies[deviceio.OpListen] = deviceio.Reply{OK: true, Text: "hi"}
	f.bind(t, hal.ClassInput, hal.RealBackend{Handle: handle(hal.ClassInput, "voice-node")})

	res := f.router.Listen(context.Background(), 0)
	if !res.Success || res.Data != "hi" {
		t.Fatalf("Listen() = %+v, want hi", res)
	}
	if sent := f.io.sent("voice-node"); len(sent) != 1 || sent[0].TimeoutMS != 0 {
		t.Errorf("sent = %+v, want one listen without timeout_ms", sent)
	}
}

func TestMoveActuator(t *testing.T) {
	tests := []struct {
		name     string
		position int
		wantErr  error
	}{
		{"lower bound", 0, nil},
		{"upper bound", 180, nil},
		{"negative", -5, hal.ErrInvalidPosition},
		{"too far", 181, hal.ErrInvalidPosition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			res := f.router.MoveActuator(context.Background(), "servo1", tt.position)
			if tt.wantErr != nil {
				if res.Success || !errors.Is(res.Err, tt.wantErr) {
					t.Fatalf("MoveActuator() = %+v, want %v", res, tt.wantErr)
				}
				if len(res.Attempted) != 0 {
					t.Errorf("invalid position should not reach a backend, attempted %v", res.Attempted)
				}
				return
			}
			if !res.Success || res.Data != tt.position {
				t.Fatalf("MoveActuator() = %+v", res)
			}
			if got := f.sim.Positions()["servo1"]; got != tt.position {
				t.Errorf("simulated servo1 = %d, want %d", got, tt.position)
			}
		})
	}
}

func TestMoveActuator_RealFailureIsNotPersisted(t *testing.T) {
	f := newFixture(t, nil)
	f.io.modes["/dev/ttyACM0"] = broken
	bound := hal.RealBackend{Handle: handle(hal.ClassMotion, "/dev/ttyACM0")}
	f.bind(t, hal.ClassMotion, bound)

	for i, pos := range []int{45, 135} {
		res := f.router.MoveActuator(context.Background(), "servo1", pos)
		if !res.Success || res.Data != pos {
			t.Fatalf("MoveActuator() #%d = %+v, want success", i, res)
		}
		if res.MethodUsed != hal.TierSimulated {
			t.Errorf("MethodUsed = %q, want simulated", res.MethodUsed)
		}
		assertAttempted(t, res.Attempted, hal.TierReal, hal.TierSimulated)
		if !res.Fallback() {
			t.Error("Fallback() = false, want true")
		}
		if got := f.sim.Positions()["servo1"]; got != pos {
			t.Errorf("simulated servo1 = %d, want %d", got, pos)
		}

		rb, ok := f.registry.Get(hal.ClassMotion).(hal.RealBackend)
		if !ok || rb.Handle.ID != bound.Handle.ID {
			t.Fatalf("registry motion = %v, want the real backend to stay bound", f.registry.Get(hal.ClassMotion))
		}
	}

	sent := f.io.sent("/dev/ttyACM0")
	if len(sent) != 2 || sent[0].Op != deviceio.OpMove || sent[0].Actuator != "servo1" {
		t.Errorf("sent = %+v, want the real device tried once per call", sent)
	}
}

func TestMovePose(t *testing.T) {
	f := newFixture(t, nil)

	res := f.router.MovePose(context.Background(), "celebration")
	if !res.Success {
		t.Fatalf("MovePose() failed: %s", res.Reason)
	}
	pos := f.sim.Positions()
	if pos["servo1"] != 180 || pos["servo2"] != 0 {
		t.Errorf("positions = %v, want servo1=180 servo2=0", pos)
	}

	res = f.router.MovePose(context.Background(), "moonwalk")
	if res.Success || !errors.Is(res.Err, hal.ErrUnknownPose) {
		t.Errorf("MovePose(unknown) = %+v, want ErrUnknownPose", res)
	}
}

func TestMovePose_Real(t *testing.T) {
	f := newFixture(t, nil)
	f.bind(t, hal.ClassMotion, hal.RealBackend{Handle: handle(hal.ClassMotion, "/dev/ttyACM0")})

	res := f.router.MovePose(context.Background(), "ready")
	if !res.Success || res.MethodUsed != hal.TierReal {
		t.Fatalf("MovePose() = %+v, want real success", res)
	}

	sent := f.io.sent("/dev/ttyACM0")
	if len(sent) != 2 {
		t.Fatalf("sent %d commands, want 2", len(sent))
	}
	for i, id := range []string{"servo1", "servo2"} {
		if sent[i].Op != deviceio.OpMove || sent[i].Actuator != id || sent[i].Position == nil || *sent[i].Position != 90 {
			t.Errorf("command %d = %+v, want move %s to 90", i, sent[i], id)
		}
	}
}

func TestPoses(t *testing.T) {
	f := newFixture(t, nil)
	if got := len(f.router.Poses()); got != 6 {
		t.Errorf("len(Poses()) = %d, want 6", got)
	}
}
