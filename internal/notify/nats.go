package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/events"
)

const DefaultNATSSubject = "issuetracker.events"

// NATSRelay republishes events as JSON on <subject>.<event type>.
type NATSRelay struct {
	Conn    *nats.Conn
	Subject string
	Log     *zap.SugaredLogger
}

func DialNATS(url, subject string, log *zap.SugaredLogger) (*NATSRelay, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	nc, err := nats.Connect(url,
		nats.Name("issuetracker"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSRelay{Conn: nc, Subject: subject, Log: log}, nil
}

func (r *NATSRelay) Publish(_ context.Context, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	subject := SubjectFor(r.Subject, evt.Type)
	if err := r.Conn.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (r *NATSRelay) Close() error {
	if r.Conn == nil {
		return nil
	}
	return r.Conn.Drain()
}

func SubjectFor(prefix string, t events.Type) string {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ".")
	if prefix == "" {
		prefix = DefaultNATSSubject
	}
	return prefix + "." + string(t)
}
