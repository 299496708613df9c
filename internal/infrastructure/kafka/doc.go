// Package kafka streams hardware engine events to a Kafka topic.
//
// Alerts, recoveries, probe reports and rebinds are published as JSON
// envelopes keyed by sensor id or capability class, so consumers see the
// events of one sensor or class in order. The writer is asynchronous;
// delivery failures are reported through SetOnError.
package kafka
