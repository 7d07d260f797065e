package relay

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/DoyleJ11/quadpong-server/internal/engine"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const subjectPrefix = "quadpong.session"

// conn is the slice of *nats.Conn the mirror needs.
type conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// Mirror republishes broadcast session events on NATS so out of process
// consumers (spectators, analytics) can follow a match.
type Mirror struct {
	nc  conn
	log *zap.Logger
}

type envelope struct {
	Session string           `json:"session"`
	Version int              `json:"version"`
	Type    engine.EventType `json:"type"`
	Payload any              `json:"payload,omitempty"`
}

func Connect(url string, log *zap.Logger) (*Mirror, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("relay")
	nc, err := nats.Connect(url,
		nats.Name("quadpong-server"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &Mirror{nc: nc, log: log}, nil
}

// Subject is quadpong.session.<code>.<event type>.
func Subject(code string, t engine.EventType) string {
	return subjectPrefix + "." + strings.ToUpper(code) + "." + string(t)
}

// Publish mirrors one event. Point to point events stay private.
func (m *Mirror) Publish(code string, version int, e engine.Event) error {
	if !e.Broadcast() {
		return nil
	}
	data, err := json.Marshal(envelope{Session: code, Version: version, Type: e.Type, Payload: e.Payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", e.Type, err)
	}
	if err := m.nc.Publish(Subject(code, e.Type), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Close flushes pending publishes and closes the connection.
func (m *Mirror) Close() error {
	return m.nc.Drain()
}
