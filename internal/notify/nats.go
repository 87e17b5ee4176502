package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when no subject is configured
const DefaultSubject = "lotto.events"

// NATSSink publishes events as JSON on a subject
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink connects to url. An empty url uses the NATS default.
func NewNATSSink(url, subject string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url,
		nats.Name("lotto-agent"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{nc: nc, subject: subject}, nil
}

// Name implements Sink
func (s *NATSSink) Name() string { return "nats" }

// Send implements Sink
func (s *NATSSink) Send(_ context.Context, evt Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return s.nc.Publish(s.subject, data)
}

// Close flushes pending messages and closes the connection
func (s *NATSSink) Close() {
	_ = s.nc.Drain()
}
