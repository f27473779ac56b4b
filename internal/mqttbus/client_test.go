package mqttbus

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mhdawson/MqttDlnaPlay/internal/config"
)

func testConfig() config.MQTT {
	return config.MQTT{
		BrokerURL: "tcp://127.0.0.1:1883",
		Topic:     "house/dlnaplay",
		ClientID:  "mqttdlnaplay-test",
	}
}

func TestDispatchPreservesDeliveryOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	handler := func(_ context.Context, topic string, payload []byte) {
		// A slow first command must not let later ones overtake it.
		if string(payload) == "msg-0" {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		got = append(got, string(payload))
		mu.Unlock()
		if string(payload) == "msg-4" {
			close(done)
		}
	}

	c, err := New(ctx, testConfig(), handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	for i := 0; i < 5; i++ {
		c.enqueue("house/dlnaplay/control", []byte(fmt.Sprintf("msg-%d", i)))
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("queued messages never dispatched")
	}

	mu.Lock()
	defer mu.Unlock()
	for i := range got {
		if want := fmt.Sprintf("msg-%d", i); got[i] != want {
			t.Fatalf("messages dispatched out of order: %v", got)
		}
	}
}

func TestEnqueueReturnsAfterShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	c, err := New(ctx, testConfig(), func(context.Context, string, []byte) {}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	cancel()

	// Must not block forever once the dispatcher has stopped.
	for i := 0; i < inboundDepth+4; i++ {
		c.enqueue("house/dlnaplay", []byte("whatsnew"))
	}
}
