package deviceio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// ExecDriver runs local helper programs that wrap generic system devices
// (default microphone, speakers, a USB camera).
//
// The candidate address is a command line, e.g. "laura-gesture --device /dev/video0".
// Open checks the program is installed and that every /dev path argument
// exists. Write runs the program with the payload on stdin and keeps its
// stdout for the following Read; a Read with nothing pending runs the
// program with empty stdin.
type ExecDriver struct {
	lookPath func(file string) (string, error)
	stat     func(name string) (os.FileInfo, error)

	mu    sync.Mutex
	procs map[string]*execConn
}

type execConn struct {
	argv []string

	mu      sync.Mutex
	pending []byte
	hasOut  bool
}

// NewExecDriver creates a driver resolving programs on PATH.
func NewExecDriver() *ExecDriver {
	return &ExecDriver{
		lookPath: exec.LookPath,
		stat:     os.Stat,
		procs:    make(map[string]*execConn),
	}
}

// Open validates the helper and its device arguments.
func (d *ExecDriver) Open(ctx context.Context, class hal.CapabilityClass, c hal.Candidate) (hal.Handle, error) {
	if err := ctx.Err(); err != nil {
		return hal.Handle{}, err
	}
	argv := strings.Fields(c.Address)
	if len(argv) == 0 {
		return hal.Handle{}, fmt.Errorf("%w: empty command", ErrDeviceAbsent)
	}

	path, err := d.lookPath(argv[0])
	if err != nil {
		return hal.Handle{}, fmt.Errorf("%w: %s not installed", ErrDeviceAbsent, argv[0])
	}
	for _, arg := range argv[1:] {
		if !strings.HasPrefix(arg, "/dev/") {
			continue
		}
		if _, err := d.stat(arg); err != nil {
			return hal.Handle{}, fmt.Errorf("%w: %s", ErrDeviceAbsent, arg)
		}
	}
	argv[0] = path

	h := newHandle(class, c)
	d.mu.Lock()
	d.procs[h.ID] = &execConn{argv: argv}
	d.mu.Unlock()
	return h, nil
}

func (d *ExecDriver) conn(h hal.Handle) (*execConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.procs[h.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hal.ErrInvalidHandle, h.ID)
	}
	return c, nil
}

// run executes the helper under ctx with stdin and returns its stdout.
func (c *execConn) run(ctx context.Context, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.argv[0], c.argv[1:]...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%s exited with %d: %s", c.argv[0], exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("running %s: %w", c.argv[0], err)
	}
	return out, nil
}

// Write runs the helper with payload on stdin.
func (d *ExecDriver) Write(ctx context.Context, h hal.Handle, payload []byte) error {
	c, err := d.conn(h)
	if err != nil {
		return err
	}
	out, err := c.run(ctx, payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.pending, c.hasOut = out, true
	c.mu.Unlock()
	return nil
}

// Read returns the output of the last Write, or runs the helper afresh.
func (d *ExecDriver) Read(ctx context.Context, h hal.Handle) ([]byte, error) {
	c, err := d.conn(h)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.hasOut {
		out := c.pending
		c.pending, c.hasOut = nil, false
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()
	return c.run(ctx, nil)
}

// Close forgets the handle.
func (d *ExecDriver) Close(h hal.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.procs[h.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrClosed, h.ID)
	}
	delete(d.procs, h.ID)
	return nil
}
