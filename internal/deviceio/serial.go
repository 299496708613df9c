package deviceio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// serialPollInterval bounds each blocking port read so context cancellation
// is observed promptly.
const serialPollInterval = 100 * time.Millisecond

// maxSerialLine caps a single reply line from a microcontroller.
const maxSerialLine = 4096

// serialPingTimeout bounds the open handshake when ctx carries no deadline.
const serialPingTimeout = 2 * time.Second

// PortOpener opens a serial port. serial.Open satisfies it.
type PortOpener func(name string, mode *serial.Mode) (serial.Port, error)

// SerialDriver talks newline-delimited JSON to microcontrollers attached to
// serial ports (e.g. the Arduino servo board).
type SerialDriver struct {
	mode *serial.Mode
	open PortOpener

	mu    sync.Mutex
	ports map[string]*serialConn
}

type serialConn struct {
	mu   sync.Mutex
	port serial.Port
	buf  []byte
}

// NewSerialDriver creates a driver opening ports at the given baud rate.
func NewSerialDriver(baudRate int) *SerialDriver {
	return NewSerialDriverWithOpener(baudRate, serial.Open)
}

// NewSerialDriverWithOpener creates a driver with a custom port opener.
func NewSerialDriverWithOpener(baudRate int, open PortOpener) *SerialDriver {
	return &SerialDriver{
		mode:  &serial.Mode{BaudRate: baudRate},
		open:  open,
		ports: make(map[string]*serialConn),
	}
}

// Ports lists the serial ports reported by the operating system.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("listing serial ports: %w", err)
	}
	return ports, nil
}

// Open opens the port named by the candidate address and pings the device
// behind it. A port that opens but does not answer {"ok":true} is closed
// again and reported as hal.ErrProbeTimeout.
//
// Opening runs on a separate goroutine so a wedged driver cannot hold the
// probe past ctx; a port that opens after ctx expired is closed again.
func (d *SerialDriver) Open(ctx context.Context, class hal.CapabilityClass, c hal.Candidate) (hal.Handle, error) {
	type result struct {
		port serial.Port
		err  error
	}
	done := make(chan result, 1)
	go func() {
		p, err := d.open(c.Address, d.mode)
		done <- result{p, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-done; r.err == nil {
				_ = r.port.Close()
			}
		}()
		return hal.Handle{}, fmt.Errorf("opening %s: %w", c.Address, ctx.Err())
	case r := <-done:
		if r.err != nil {
			var perr *serial.PortError
			if errors.As(r.err, &perr) && perr.Code() == serial.PortNotFound {
				return hal.Handle{}, fmt.Errorf("%w: %s", ErrDeviceAbsent, c.Address)
			}
			return hal.Handle{}, fmt.Errorf("opening %s: %w", c.Address, r.err)
		}
		h := newHandle(class, c)
		d.mu.Lock()
		d.ports[h.ID] = &serialConn{port: r.port}
		d.mu.Unlock()
		if err := d.ping(ctx, h); err != nil {
			_ = d.Close(h)
			return hal.Handle{}, fmt.Errorf("%w: %s did not answer ping: %w", hal.ErrProbeTimeout, c.Address, err)
		}
		return h, nil
	}
}

// ping runs one ping exchange on a freshly opened port.
func (d *SerialDriver) ping(ctx context.Context, h hal.Handle) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, serialPingTimeout)
		defer cancel()
	}
	_, err := Transact(ctx, d, h, Command{Op: OpPing})
	return err
}

func (d *SerialDriver) conn(h hal.Handle) (*serialConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.ports[h.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hal.ErrInvalidHandle, h.ID)
	}
	return c, nil
}

// Write sends payload as one line.
func (d *SerialDriver) Write(ctx context.Context, h hal.Handle, payload []byte) error {
	c, err := d.conn(h)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	line := payload
	if !bytes.HasSuffix(line, []byte{'\n'}) {
		line = append(append([]byte{}, payload...), '\n')
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.port.Write(line); err != nil {
		return fmt.Errorf("writing %s: %w", h.Candidate.Address, err)
	}
	return nil
}

// Read returns the next line from the device without its newline.
func (d *SerialDriver) Read(ctx context.Context, h hal.Handle) ([]byte, error) {
	c, err := d.conn(h)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.port.SetReadTimeout(serialPollInterval); err != nil {
		return nil, fmt.Errorf("configuring %s: %w", h.Candidate.Address, err)
	}

	chunk := make([]byte, 256)
	for {
		if i := bytes.IndexByte(c.buf, '\n'); i >= 0 {
			line := bytes.TrimRight(c.buf[:i], "\r")
			out := append([]byte{}, line...)
			c.buf = c.buf[i+1:]
			return out, nil
		}
		if len(c.buf) > maxSerialLine {
			c.buf = nil
			return nil, fmt.Errorf("%w: line exceeds %d bytes", ErrMalformedReply, maxSerialLine)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := c.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", h.Candidate.Address, err)
		}
		c.buf = append(c.buf, chunk[:n]...)
	}
}

// Close closes the port behind the handle.
func (d *SerialDriver) Close(h hal.Handle) error {
	d.mu.Lock()
	c, ok := d.ports[h.ID]
	delete(d.ports, h.ID)
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrClosed, h.ID)
	}
	return c.port.Close()
}
