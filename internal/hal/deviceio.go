package hal

import "context"

// DeviceIO is the generic device I/O contract consumed by the engine.
//
// Real and device-only backends are thin adapters over it. Implementations
// must honour context cancellation on every call; Open is expected to
// return quickly when the endpoint is absent.
type DeviceIO interface {
	Open(ctx context.Context, class CapabilityClass, candidate Candidate) (Handle, error)
	Write(ctx context.Context, h Handle, payload []byte) error
	Read(ctx context.Context, h Handle) ([]byte, error)
	Close(h Handle) error
}
