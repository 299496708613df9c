// Package telemetry moves sensor readings and alert transitions to every
// downstream sink.
//
// Readings arrive from the simulation substrate (simulated ticks and
// ingested external readings) and are queued to a single worker, which:
//   - runs the alert evaluator
//   - publishes simulated readings to MQTT ({prefix}/sensor/{id})
//   - writes every reading to InfluxDB
//   - broadcasts to WebSocket subscribers
//
// Alert and recovery transitions additionally go to Kafka and the audit
// trail. Real sensors publish JSON to {prefix}/ingest/{id}; those messages
// are handed to the substrate, which feeds them back through the same path.
//
// Every sink is optional.
package telemetry
