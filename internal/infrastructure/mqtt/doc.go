// Package mqtt provides the MQTT message bus for the Laura-bot hardware engine.
//
// Networked hardware nodes (ESP32 camera, voice and speaker nodes, serial
// bridges) talk to the engine over a Mosquitto broker:
//
//	Engine ↔ MQTT Broker ↔ Hardware nodes / real sensors
//
// This package manages:
//   - Connection with auto-reconnect and a retained Last Will status
//   - Publishing with QoS validation and a 1MB payload cap
//   - Subscriptions that survive reconnects
//   - Panic-safe message handlers
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllIngest(), 1,
//	    func(topic string, payload []byte) error {
//	        return ingest(mqtt.LastSegment(topic), payload)
//	    })
package mqtt
