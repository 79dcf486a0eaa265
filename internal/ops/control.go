package ops

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/adapter"
	"main/internal/audit"
	"main/internal/bus"
	"main/internal/codec"
	"main/internal/dispatch"
	"main/internal/obs"
	"main/internal/risk"
	"main/internal/schema"
)

var (
	errBadAction = errors.New("unknown control action")
	errBadState  = errors.New("unknown guardrail state")
)

// Command is the JSON body of an operator request.
type Command struct {
	Action     string `json:"action"`
	StrategyID uint32 `json:"strategyId"`
	Scope      string `json:"scope"` // "global" or "strategy"
	State      string `json:"state"` // for guardrail_force
	Actor      string `json:"actor"`
}

// Controller is the authenticated HTTP surface for operator commands. It
// translates requests into dispatcher and risk engine control messages and
// records every accepted command in the audit trail.
type Controller struct {
	token       string
	dispatchCtl *bus.Queue[dispatch.Control]
	riskCtl     *bus.Queue[risk.Control]
	adapterCtl  *bus.Queue[adapter.Control]
	stream      *obs.Stream
	audit       *audit.Store
}

// NewController wires the control surface.
func NewController(
	token string,
	dispatchCtl *bus.Queue[dispatch.Control],
	riskCtl *bus.Queue[risk.Control],
	adapterCtl *bus.Queue[adapter.Control],
	stream *obs.Stream,
	auditStore *audit.Store,
) *Controller {
	return &Controller{
		token:       token,
		dispatchCtl: dispatchCtl,
		riskCtl:     riskCtl,
		adapterCtl:  adapterCtl,
		stream:      stream,
		audit:       auditStore,
	}
}

// Register mounts the control routes.
func (c *Controller) Register(mux *http.ServeMux) {
	mux.HandleFunc("/control", c.handleControl)
}

func (c *Controller) handleControl(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !c.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var cmd Command
	if err := sonic.ConfigFastest.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if cmd.Actor == "" {
		cmd.Actor = "unknown"
	}

	if err := c.apply(cmd); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := c.audit.Record(ctx, cmd.Actor, cmd.Action, targetName(cmd), ""); err != nil {
		logs.Errorf("ops: audit record failed: %v", err)
	}
	c.emitOperatorEvent(cmd)

	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"ok":true}`))
}

func (c *Controller) apply(cmd Command) error {
	switch cmd.Action {
	case "enable_strategy":
		return c.dispatchCtl.TryPublish(dispatch.Control{
			Kind:       dispatch.ControlEnable,
			StrategyID: cmd.StrategyID,
		})
	case "disable_strategy":
		return c.dispatchCtl.TryPublish(dispatch.Control{
			Kind:       dispatch.ControlDisable,
			StrategyID: cmd.StrategyID,
		})
	case "guardrail_reset":
		return c.riskCtl.TryPublish(risk.Control{
			Kind:       risk.ControlReset,
			Scope:      parseScope(cmd.Scope),
			StrategyID: cmd.StrategyID,
		})
	case "guardrail_force":
		state, ok := parseGuardrailState(cmd.State)
		if !ok {
			return errBadState
		}
		return c.riskCtl.TryPublish(risk.Control{
			Kind:       risk.ControlForce,
			Scope:      parseScope(cmd.Scope),
			StrategyID: cmd.StrategyID,
			State:      state,
		})
	case "cancel_all":
		return c.adapterCtl.TryPublish(adapter.Control{Kind: adapter.ControlCancelAll})
	case "dump_orders":
		return c.adapterCtl.TryPublish(adapter.Control{Kind: adapter.ControlDumpOrders})
	default:
		return errBadAction
	}
}

func (c *Controller) authorized(r *http.Request) bool {
	if c.token == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	return strings.TrimPrefix(header, "Bearer ") == c.token
}

func (c *Controller) emitOperatorEvent(cmd Command) {
	// Operator commands travel on the stream as a status payload so the
	// WAL keeps a replayable trace of manual intervention.
	status := schema.StrategyStatus{
		StrategyID: cmd.StrategyID,
		TsNs:       time.Now().UnixNano(),
	}
	c.stream.Emit(schema.EventOperatorCommand, uint64(cmd.StrategyID), status.TsNs,
		codec.EncodeStrategyStatus(nil, status))
}

func parseScope(scope string) schema.GuardrailScope {
	if scope == "strategy" {
		return schema.ScopeStrategy
	}
	return schema.ScopeGlobal
}

func parseGuardrailState(state string) (schema.GuardrailState, bool) {
	switch strings.ToUpper(state) {
	case "NORMAL":
		return schema.GuardrailNormal, true
	case "WARM":
		return schema.GuardrailWarm, true
	case "STORM":
		return schema.GuardrailStorm, true
	case "HALT":
		return schema.GuardrailHalt, true
	default:
		return schema.GuardrailNormal, false
	}
}

func targetName(cmd Command) string {
	if cmd.Scope == "global" || cmd.StrategyID == 0 {
		return "global"
	}
	return "strategy:" + strconv.FormatUint(uint64(cmd.StrategyID), 10)
}
