package mqtt

import "fmt"

// DefaultTopicPrefix is the root of every engine topic when none is configured.
const DefaultTopicPrefix = "laurabot"

// Topics builds engine MQTT topics under a common prefix.
//
// Topic layout:
//
//	{prefix}/system/status               engine online/offline (retained, LWT)
//	{prefix}/node/{node}/command         request to a hardware node
//	{prefix}/node/{node}/response        reply from a hardware node
//	{prefix}/node/{node}/status          node heartbeat (retained)
//	{prefix}/sensor/{sensor_id}          published sensor readings
//	{prefix}/ingest/{sensor_id}          readings from real sensors
//	{prefix}/alert/{severity}            alert transitions
//	{prefix}/event/{kind}                hardware events (gestures, rebinds)
//
// Example:
//
//	topics := mqtt.NewTopics("laurabot")
//	topics.NodeCommand("esp32-cam") // "laurabot/node/esp32-cam/command"
type Topics struct {
	Prefix string
}

// NewTopics returns a topic builder. An empty prefix selects DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{Prefix: prefix}
}

func (t Topics) root() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SystemStatus returns the engine status topic used for LWT and graceful shutdown.
func (t Topics) SystemStatus() string {
	return fmt.Sprintf("%s/system/status", t.root())
}

// NodeCommand returns the topic commands to a hardware node are published on.
func (t Topics) NodeCommand(node string) string {
	return fmt.Sprintf("%s/node/%s/command", t.root(), node)
}

// NodeResponse returns the topic a hardware node replies on.
func (t Topics) NodeResponse(node string) string {
	return fmt.Sprintf("%s/node/%s/response", t.root(), node)
}

// NodeStatus returns the retained heartbeat topic of a hardware node.
func (t Topics) NodeStatus(node string) string {
	return fmt.Sprintf("%s/node/%s/status", t.root(), node)
}

// SensorReading returns the topic a sensor's readings are published on.
func (t Topics) SensorReading(sensorID string) string {
	return fmt.Sprintf("%s/sensor/%s", t.root(), sensorID)
}

// Ingest returns the topic real sensors publish their readings to.
func (t Topics) Ingest(sensorID string) string {
	return fmt.Sprintf("%s/ingest/%s", t.root(), sensorID)
}

// Alert returns the topic alert transitions of a severity are published on.
func (t Topics) Alert(severity string) string {
	return fmt.Sprintf("%s/alert/%s", t.root(), severity)
}

// Event returns the topic for hardware events of one kind.
func (t Topics) Event(kind string) string {
	return fmt.Sprintf("%s/event/%s", t.root(), kind)
}

// AllNodeStatus matches every node heartbeat.
//
// Pattern: {prefix}/node/+/status
func (t Topics) AllNodeStatus() string {
	return fmt.Sprintf("%s/node/+/status", t.root())
}

// AllIngest matches every real-sensor reading.
//
// Pattern: {prefix}/ingest/+
func (t Topics) AllIngest() string {
	return fmt.Sprintf("%s/ingest/+", t.root())
}

// AllTopics matches all engine traffic.
//
// Pattern: {prefix}/#
func (t Topics) AllTopics() string {
	return t.root() + "/#"
}

// LastSegment returns the final path element of a topic, e.g. the sensor id of
// an ingest topic.
func LastSegment(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}
