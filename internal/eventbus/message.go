/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/paraspace/internal/events"
)

// Bus is a Publisher that owns connections.
type Bus interface {
	events.Publisher
	io.Closer
}

// Backend selects the bus implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
	BackendNATS   Backend = "nats"
)

// Config selects and configures a bus.
type Config struct {
	Backend Backend
	NodeID  string
	Redis   RedisConfig
	NATS    NATSConfig
}

// New creates the configured bus. Distributed buses degrade to in-process
// delivery when their server is unreachable.
func New(cfg Config, logger zerolog.Logger) (Bus, error) {
	logger = logger.With().Str("component", "eventbus").Logger()
	if cfg.NodeID == "" {
		cfg.NodeID = NewNodeID()
	}
	switch cfg.Backend {
	case BackendMemory, "":
		return memoryBus{events.NewBus()}, nil
	case BackendRedis:
		return NewRedisBus(cfg.Redis, cfg.NodeID, logger)
	case BackendNATS:
		return NewNATSBus(cfg.NATS, cfg.NodeID, logger)
	}
	return nil, fmt.Errorf("unsupported event backend %q", cfg.Backend)
}

type memoryBus struct{ *events.Bus }

func (memoryBus) Close() error { return nil }

// NewNodeID returns hostname plus a random suffix.
func NewNodeID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "node"
	}
	return host + "-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// message is the envelope published to Redis and NATS.
type message struct {
	EventType events.EventType `json:"event_type"`
	Payload   events.Payload   `json:"payload"`
	Timestamp time.Time        `json:"timestamp"`
	NodeID    string           `json:"node_id"`
	MessageID string           `json:"message_id"`
}

func marshalMessage(eventType events.EventType, payload events.Payload, nodeID string) ([]byte, error) {
	return json.Marshal(message{
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
		NodeID:    nodeID,
		MessageID: uuid.NewString(),
	})
}

func unmarshalMessage(data []byte) (*message, error) {
	var msg message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal event message: %w", err)
	}
	return &msg, nil
}
