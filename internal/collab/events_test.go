package collab

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"collab-backend/internal/protocol"
)

func TestBusDispatchByName(t *testing.T) {
	b := NewBus()
	var reactions, other int
	b.Subscribe("reaction", func(sender string, ev protocol.AppEvent) {
		assert.Equal(t, "conn-2", sender)
		reactions++
	})
	b.Subscribe("drawing", func(string, protocol.AppEvent) { other++ })

	b.Dispatch("conn-2", protocol.AppEvent{Name: "reaction"})
	b.Dispatch("conn-2", protocol.AppEvent{Name: "reaction"})

	assert.Equal(t, 2, reactions)
	assert.Zero(t, other)
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()
	var calls int
	off := b.Subscribe("reaction", func(string, protocol.AppEvent) { calls++ })

	b.Dispatch("c", protocol.AppEvent{Name: "reaction"})
	off()
	off() // second call is harmless
	b.Dispatch("c", protocol.AppEvent{Name: "reaction"})

	assert.Equal(t, 1, calls)
}

func TestBusNoSubscribers(t *testing.T) {
	b := NewBus()
	assert.NotPanics(t, func() {
		b.Dispatch("c", protocol.AppEvent{Name: "nobody-listens"})
	})
}
