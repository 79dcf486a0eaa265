package broker

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/ws"

	"main/internal/schema"
)

// wireCommand is the JSON frame sent to the venue gateway.
type wireCommand struct {
	Op         string `json:"op"`
	CmdID      uint64 `json:"cmdId"`
	OrderID    uint64 `json:"orderId"`
	SymbolID   uint32 `json:"symbolId"`
	Side       uint16 `json:"side"`
	Tif        uint16 `json:"tif"`
	Price      int64  `json:"price"`
	Qty        int64  `json:"qty"`
	DeadlineNs int64  `json:"deadlineNs"`
}

// wireResponse is the JSON frame received from the venue gateway.
type wireResponse struct {
	Type      string `json:"type"`
	CmdID     uint64 `json:"cmdId"`
	OrderID   uint64 `json:"orderId"`
	Reason    uint16 `json:"reason"`
	Side      uint16 `json:"side"`
	Price     int64  `json:"price"`
	Qty       int64  `json:"qty"`
	LeavesQty int64  `json:"leavesQty"`
}

type wireLogin struct {
	Op      string `json:"op"`
	Session string `json:"session"`
	Token   string `json:"token"`
}

type wireLoginAck struct {
	Type    string `json:"type"`
	Session string `json:"session"`
	OK      bool   `json:"ok"`
}

// WireConfig describes the venue gateway session.
type WireConfig struct {
	URL     string `json:"url"`
	Session string `json:"session"`
	Token   string `json:"token"`
	Buffer  int    `json:"buffer"`
}

// Wire is a JSON-over-websocket broker session.
type Wire struct {
	cfg WireConfig
	wss *ws.WebSocket
	out chan schema.BrokerResponse

	cancel func()
}

// DialWire opens and authenticates the gateway session, then starts the
// response pump.
func DialWire(ctx context.Context, cfg WireConfig) (*Wire, error) {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
	w := &Wire{
		cfg: cfg,
		wss: ws.New(ctx, cfg.URL),
		out: make(chan schema.BrokerResponse, cfg.Buffer),
	}
	if err := w.wss.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start gateway session")
	}
	if err := w.login(ctx); err != nil {
		w.wss.Close()
		return nil, err
	}
	w.pump(ctx)
	return w, nil
}

func (w *Wire) login(ctx context.Context) error {
	if err := w.wss.SendAndWait(ctx, ws.Sidecar{
		Sender: func(ctx context.Context, wss *ws.WebSocket) error {
			payload := wireLogin{Op: "login", Session: w.cfg.Session, Token: w.cfg.Token}
			if err := wss.WriteJSON(payload); err != nil {
				return errors.Wrap(err, "write login").With("session", w.cfg.Session)
			}
			return nil
		},
		Waiter: func(ctx context.Context, m ws.Message) (bool, error) {
			var ack wireLoginAck
			if err := m.Unmarshal(&ack); err != nil || ack.Type != "login" {
				return false, nil
			}
			if !ack.OK {
				return false, errors.Errorf("gateway login refused, session: %s", ack.Session)
			}
			return true, nil
		},
	}, false); err != nil {
		return errors.Wrap(err, "gateway login")
	}
	return nil
}

func (w *Wire) pump(ctx context.Context) {
	ch, cancel := w.wss.Subscribe()
	w.cancel = cancel

	go func() {
		defer close(w.out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				resp, ok := ws.ReadMessage[wireResponse](m)
				if !ok {
					continue
				}
				kind := responseKind(resp.Type)
				if kind == schema.ResponseUnknown {
					continue
				}
				select {
				case w.out <- schema.BrokerResponse{
					CmdID:     resp.CmdID,
					OrderID:   resp.OrderID,
					Kind:      kind,
					Reason:    resp.Reason,
					Side:      schema.OrderSide(resp.Side),
					Price:     schema.Price(resp.Price),
					Qty:       schema.Quantity(resp.Qty),
					LeavesQty: schema.Quantity(resp.LeavesQty),
				}:
				default:
					logs.Warnf("wire: response buffer full, dropped cmd %d", resp.CmdID)
				}
			}
		}
	}()
}

// Send writes one command frame.
func (w *Wire) Send(cmd schema.OrderCommand) error {
	frame := wireCommand{
		Op:         actionOp(cmd.Action),
		CmdID:      cmd.CmdID,
		OrderID:    cmd.OrderID,
		SymbolID:   cmd.SymbolID,
		Side:       uint16(cmd.Side),
		Tif:        uint16(cmd.TimeInForce),
		Price:      int64(cmd.Price),
		Qty:        int64(cmd.Qty),
		DeadlineNs: cmd.DeadlineNs,
	}
	if err := w.wss.WriteJSON(frame); err != nil {
		return errors.Wrap(err, "write command").With("cmdId", cmd.CmdID)
	}
	return nil
}

// Responses exposes the response channel.
func (w *Wire) Responses() <-chan schema.BrokerResponse {
	return w.out
}

// Close ends the session.
func (w *Wire) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	w.wss.Close()
	return nil
}

func actionOp(action schema.BrokerAction) string {
	switch action {
	case schema.BrokerActionAmend:
		return "amend"
	case schema.BrokerActionCancel:
		return "cancel"
	default:
		return "submit"
	}
}

func responseKind(t string) schema.ResponseKind {
	switch t {
	case "ack":
		return schema.ResponseAck
	case "reject":
		return schema.ResponseReject
	case "fill":
		return schema.ResponseFill
	case "timeout":
		return schema.ResponseTimeout
	default:
		return schema.ResponseUnknown
	}
}
