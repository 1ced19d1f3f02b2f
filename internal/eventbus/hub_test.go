package eventbus

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishFansOutToClients(t *testing.T) {
	h := New(zerolog.Nop())
	go h.Run()
	defer h.Stop()

	c := &client{hub: h, send: make(chan string, clientBuffer)}
	h.register <- c
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	h.Publish("hello")

	select {
	case msg := <-c.send:
		require.Equal(t, "hello", msg)
	case <-time.After(time.Second):
		t.Fatal("client never received broadcast")
	}
}

func TestHub_PublishDropsOldestWhenBufferFull(t *testing.T) {
	h := &Hub{
		log:        zerolog.Nop(),
		broadcast:  make(chan string, 2),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
	// No Run goroutine: broadcast channel is filled directly to exercise
	// Publish's drop-oldest behavior deterministically.
	h.broadcast <- "first"
	h.broadcast <- "second"

	h.Publish("third")

	require.Equal(t, "second", <-h.broadcast)
	require.Equal(t, "third", <-h.broadcast)
}

func TestHub_StopIsIdempotent(t *testing.T) {
	h := New(zerolog.Nop())
	go h.Run()
	h.Stop()
	require.NotPanics(t, func() { h.Stop() })
}

func TestHub_UnregisterClosesSendChannel(t *testing.T) {
	h := New(zerolog.Nop())
	go h.Run()
	defer h.Stop()

	c := &client{hub: h, send: make(chan string, clientBuffer)}
	h.register <- c
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(time.Millisecond)
	}

	h.unregister <- c
	deadline = time.Now().Add(time.Second)
	for h.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never unregistered")
		}
		time.Sleep(time.Millisecond)
	}

	_, ok := <-c.send
	require.False(t, ok, "send channel should be closed on unregister")
}
