package eventlog

import "context"

// NoopBus is used when NATS_URL is unset: every Publish reports
// ok=false so callers take the direct-write fallback path, and
// Subscribe simply blocks until ctx is cancelled since there is nothing
// to consume from.
type NoopBus struct{}

func (NoopBus) Publish(ctx context.Context, stream, key string, payload []byte) (bool, error) {
	return false, nil
}

func (NoopBus) Subscribe(ctx context.Context, stream, group string, handler func(ctx context.Context, subject string, data []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (NoopBus) Close() error { return nil }
