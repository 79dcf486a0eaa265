// Package publish mirrors the event stream onto NATS for downstream
// consumers (dashboards, surveillance, PnL). Publishing is best effort:
// a slow or absent broker never backpressures the pipeline.
package publish

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/nats-io/nats.go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/bus"
	"main/internal/codec"
	"main/internal/obs"
)

// Config describes the outbound connection.
type Config struct {
	URL     string
	Subject string
}

// envelope is the JSON frame published per event.
type envelope struct {
	Type    string `json:"type"`
	Version uint16 `json:"version"`
	Source  uint16 `json:"source"`
	Seq     uint64 `json:"seq"`
	TsEvent int64  `json:"tsEvent"`
	TsRecv  int64  `json:"tsRecv"`
	TraceID uint64 `json:"traceId"`
	Payload any    `json:"payload,omitempty"`
}

// Publisher drains a stream tap into NATS subjects.
type Publisher struct {
	cfg     Config
	conn    *nats.Conn
	tap     *bus.Queue[obs.Envelope]
	metrics *obs.Metrics
}

// Connect dials the broker and wires the publisher.
func Connect(cfg Config, tap *bus.Queue[obs.Envelope], metrics *obs.Metrics) (*Publisher, error) {
	if cfg.Subject == "" {
		cfg.Subject = "pipeline.events"
	}
	conn, err := nats.Connect(cfg.URL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect nats")
	}
	return &Publisher{cfg: cfg, conn: conn, tap: tap, metrics: metrics}, nil
}

// Run drains the tap until the context is cancelled or the tap closes.
func (p *Publisher) Run(ctx context.Context) {
	defer p.conn.Drain()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-p.tap.C():
			if !ok {
				return
			}
			if err := p.publish(env); err != nil {
				p.metrics.IncPublishDrop()
				logs.Warnf("publish: seq %d dropped: %v", env.Header.Seq, err)
			}
		}
	}
}

func (p *Publisher) publish(env obs.Envelope) error {
	frame := envelope{
		Type:    env.Header.Type.String(),
		Version: env.Header.Version,
		Source:  env.Header.Source,
		Seq:     env.Header.Seq,
		TsEvent: env.Header.TsEvent,
		TsRecv:  env.Header.TsRecv,
		TraceID: env.Header.TraceID,
	}
	if v, ok := codec.DecodeEvent(env.Header.Type, env.Payload); ok {
		frame.Payload = v
	}
	data, err := sonic.ConfigFastest.Marshal(frame)
	if err != nil {
		return err
	}
	subject := fmt.Sprintf("%s.%s", p.cfg.Subject, frame.Type)
	return p.conn.Publish(subject, data)
}

// Close drains the connection.
func (p *Publisher) Close() {
	p.conn.Close()
}
