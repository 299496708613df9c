package deviceio

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/laurabot-hal/internal/hal"
	"github.com/nerrad567/laurabot-hal/internal/infrastructure/mqtt"
)

// Bus is the subset of the MQTT client the driver needs.
// *mqtt.Client satisfies it.
type Bus interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Topics() mqtt.Topics
}

// envelope correlates a request on {prefix}/node/{node}/command with its
// reply on {prefix}/node/{node}/response.
type envelope struct {
	ID    string          `json:"id"`
	Class string          `json:"class,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

// MQTTDriver talks to networked hardware nodes through the broker.
// The candidate address is the node id.
//
// Open succeeds only when the node answers a ping, so a node that is
// configured but powered off is reported as absent.
type MQTTDriver struct {
	bus Bus
	qos byte

	mu    sync.Mutex
	nodes map[string]*mqttNode
	conns map[string]*mqttConn
}

type mqttNode struct {
	conns map[string]*mqttConn
}

type mqttConn struct {
	node  string
	class hal.CapabilityClass
	inbox chan envelope

	mu      sync.Mutex
	pending string
}

// NewMQTTDriver creates a driver publishing at the given QoS.
func NewMQTTDriver(bus Bus, qos byte) *MQTTDriver {
	return &MQTTDriver{
		bus:   bus,
		qos:   qos,
		nodes: make(map[string]*mqttNode),
		conns: make(map[string]*mqttConn),
	}
}

// Open subscribes to the node's responses and pings it.
func (d *MQTTDriver) Open(ctx context.Context, class hal.CapabilityClass, c hal.Candidate) (hal.Handle, error) {
	h := newHandle(class, c)
	conn := &mqttConn{node: c.Address, class: class, inbox: make(chan envelope, 8)}

	if err := d.attach(h.ID, conn); err != nil {
		return hal.Handle{}, err
	}

	ping, err := json.Marshal(Command{Op: OpPing})
	if err != nil {
		d.detach(h.ID)
		return hal.Handle{}, err
	}
	if err := d.Write(ctx, h, ping); err != nil {
		d.detach(h.ID)
		return hal.Handle{}, err
	}
	if _, err := d.Read(ctx, h); err != nil {
		d.detach(h.ID)
		return hal.Handle{}, fmt.Errorf("node %s did not answer ping: %w", c.Address, err)
	}
	return h, nil
}

// attach registers conn and subscribes to the node's response topic when it
// is the node's first handle.
func (d *MQTTDriver) attach(id string, conn *mqttConn) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, ok := d.nodes[conn.node]
	if !ok {
		topic := d.bus.Topics().NodeResponse(conn.node)
		if err := d.bus.Subscribe(topic, d.qos, d.responseHandler(conn.node)); err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		n = &mqttNode{conns: make(map[string]*mqttConn)}
		d.nodes[conn.node] = n
	}
	n.conns[id] = conn
	d.conns[id] = conn
	return nil
}

// detach removes a handle and unsubscribes when the node has none left.
func (d *MQTTDriver) detach(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn, ok := d.conns[id]
	if !ok {
		return false
	}
	delete(d.conns, id)
	n := d.nodes[conn.node]
	delete(n.conns, id)
	if len(n.conns) == 0 {
		delete(d.nodes, conn.node)
		_ = d.bus.Unsubscribe(d.bus.Topics().NodeResponse(conn.node))
	}
	return true
}

func (d *MQTTDriver) responseHandler(node string) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return fmt.Errorf("%w: %w", ErrMalformedReply, err)
		}

		d.mu.Lock()
		var targets []*mqttConn
		if n, ok := d.nodes[node]; ok {
			for _, c := range n.conns {
				targets = append(targets, c)
			}
		}
		d.mu.Unlock()

		for _, c := range targets {
			select {
			case c.inbox <- env:
			default:
			}
		}
		return nil
	}
}

func (d *MQTTDriver) conn(h hal.Handle) (*mqttConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.conns[h.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", hal.ErrInvalidHandle, h.ID)
	}
	return c, nil
}

// Write publishes payload to the node as a new correlated request.
func (d *MQTTDriver) Write(ctx context.Context, h hal.Handle, payload []byte) error {
	c, err := d.conn(h)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body := json.RawMessage(payload)
	if !json.Valid(payload) {
		if body, err = json.Marshal(string(payload)); err != nil {
			return err
		}
	}
	env := envelope{ID: uuid.NewString(), Class: string(c.class), Body: body}
	msg, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	c.mu.Lock()
	c.pending = env.ID
	c.mu.Unlock()

	return d.bus.Publish(d.bus.Topics().NodeCommand(c.node), msg, d.qos, false)
}

// Read waits for the reply to the last request written on h.
func (d *MQTTDriver) Read(ctx context.Context, h hal.Handle) ([]byte, error) {
	c, err := d.conn(h)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	want := c.pending
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case env := <-c.inbox:
			if want != "" && env.ID != want {
				continue
			}
			c.mu.Lock()
			if c.pending == env.ID {
				c.pending = ""
			}
			c.mu.Unlock()
			return env.Body, nil
		}
	}
}

// Close releases the handle.
func (d *MQTTDriver) Close(h hal.Handle) error {
	if !d.detach(h.ID) {
		return fmt.Errorf("%w: %s", ErrClosed, h.ID)
	}
	return nil
}
