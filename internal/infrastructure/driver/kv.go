package driver

import "context"

// KeyValueDB define a key-value storage interface
type KeyValueDB interface {
	Ping(ctx context.Context) error
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, onMessage func([]byte)) error
	Close() error
}
