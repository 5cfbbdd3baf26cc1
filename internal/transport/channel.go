package transport

import (
	"context"
	"errors"
)

// DataHandler receives inbound bytes with the sender's connection id.
// Delivery is best-effort: frames may be duplicated or arrive out of
// order relative to other senders; the room core's dedup logic covers
// that.
type DataHandler func(sender string, payload []byte)

// Channel is the boundary to the side data channel of the conferencing
// environment. A nil error from Send does not guarantee receipt by any
// peer; reliable=true is a delivery hint, not a promise.
type Channel interface {
	Send(ctx context.Context, payload []byte, reliable bool) error
	OnData(h DataHandler)
	Close() error
}

var ErrChannelClosed = errors.New("channel closed")
