/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/friendsincode/paraspace/internal/events"
)

func TestMessageRoundTrip(t *testing.T) {
	data, err := marshalMessage(events.EventSolveCompleted, events.Payload{"run_id": "r1"}, "node-a")
	if err != nil {
		t.Fatalf("marshalMessage: %v", err)
	}
	msg, err := unmarshalMessage(data)
	if err != nil {
		t.Fatalf("unmarshalMessage: %v", err)
	}
	if msg.EventType != events.EventSolveCompleted || msg.NodeID != "node-a" || msg.Payload["run_id"] != "r1" {
		t.Fatalf("message = %+v", msg)
	}
	if msg.MessageID == "" {
		t.Fatal("message id not set")
	}

	if _, err := unmarshalMessage([]byte("{")); err == nil {
		t.Fatal("expected error for truncated message")
	}
}

func expectLocalDelivery(t *testing.T, bus Bus) {
	t.Helper()
	sub := bus.Subscribe(events.EventSolveStarted)
	defer bus.Unsubscribe(events.EventSolveStarted, sub)

	bus.Publish(events.EventSolveStarted, events.Payload{"run_id": "r2"})
	select {
	case p := <-sub:
		if p["run_id"] != "r2" {
			t.Fatalf("payload = %v", p)
		}
	case <-time.After(time.Second):
		t.Fatal("local subscriber did not receive event")
	}
}

func TestNew_Memory(t *testing.T) {
	bus, err := New(Config{Backend: BackendMemory}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer bus.Close()
	expectLocalDelivery(t, bus)
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(Config{Backend: "kafka"}, zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestRedisBus_FallbackWhenUnreachable(t *testing.T) {
	cfg := DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	cfg.DialTimeout = 200 * time.Millisecond

	rb, err := NewRedisBus(cfg, "node-a", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisBus: %v", err)
	}
	defer rb.Close()

	if !rb.Fallback() {
		t.Fatal("expected in-memory fallback")
	}
	expectLocalDelivery(t, rb)
}

func TestNATSBus_FallbackWhenUnreachable(t *testing.T) {
	cfg := DefaultNATSConfig()
	cfg.URL = "nats://127.0.0.1:1"
	cfg.Timeout = 200 * time.Millisecond

	nb, err := NewNATSBus(cfg, "node-a", zerolog.Nop())
	if err != nil {
		t.Fatalf("NewNATSBus: %v", err)
	}
	defer nb.Close()

	if nb.Connected() {
		t.Fatal("unexpected NATS connection")
	}
	expectLocalDelivery(t, nb)
}

func TestNATSBus_IgnoresOwnMessages(t *testing.T) {
	nb := &NATSBus{local: events.NewBus(), nodeID: "self", logger: zerolog.Nop()}
	sub := nb.Subscribe(events.EventSolveFailed)

	own, _ := marshalMessage(events.EventSolveFailed, events.Payload{"from": "self"}, "self")
	remote, _ := marshalMessage(events.EventSolveFailed, events.Payload{"from": "peer"}, "peer")
	nb.handle(natsMsg(own))
	nb.handle(natsMsg(remote))

	select {
	case p := <-sub:
		if p["from"] != "peer" {
			t.Fatalf("received %v, want the peer's event", p)
		}
	default:
		t.Fatal("remote event not relayed")
	}
	if len(sub) != 0 {
		t.Fatal("own event was relayed")
	}
}

func natsMsg(data []byte) *nats.Msg {
	return &nats.Msg{Subject: "paraspace.events.solve.failed", Data: data}
}
