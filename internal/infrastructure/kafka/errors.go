package kafka

import "errors"

var (
	// ErrDisabled indicates Kafka publishing is disabled in config.
	ErrDisabled = errors.New("kafka: disabled in configuration")

	// ErrPublishFailed wraps encoding and delivery failures.
	ErrPublishFailed = errors.New("kafka: publish failed")
)
