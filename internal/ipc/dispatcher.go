package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/nightlock/internal/audit"
	"git.home.luguber.info/inful/nightlock/internal/clock"
	"git.home.luguber.info/inful/nightlock/internal/metrics"
	"git.home.luguber.info/inful/nightlock/internal/security"
	"git.home.luguber.info/inful/nightlock/internal/state"
	"git.home.luguber.info/inful/nightlock/internal/unlock"
)

// Dispatcher routes parsed requests to the security, unlock and store
// components and shapes the responses. It is safe for concurrent use: all
// shared state lives behind the store's lock.
type Dispatcher struct {
	store    *state.Store
	engine   *clock.Engine
	security *security.Manager
	unlock   *unlock.Manager
	audit    *audit.Log
	recorder metrics.Recorder
	clock    clock.Clock
}

// NewDispatcher wires the request router.
func NewDispatcher(
	store *state.Store,
	engine *clock.Engine,
	sec *security.Manager,
	unl *unlock.Manager,
	auditLog *audit.Log,
	recorder metrics.Recorder,
	clk clock.Clock,
) *Dispatcher {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Dispatcher{
		store:    store,
		engine:   engine,
		security: sec,
		unlock:   unl,
		audit:    auditLog,
		recorder: recorder,
		clock:    clk,
	}
}

// Handle parses one raw message and returns exactly one response value.
// Malformed or unrecognized messages yield a generic error response rather
// than an error: the connection must stay usable.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) any {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		d.recorder.IncRequest("malformed", "error")
		return errorResponse("malformed request")
	}

	resp := d.dispatch(ctx, &req)
	outcome := "ok"
	if e, isErr := resp.(ErrorResponse); isErr && !e.Success {
		outcome = "error"
	}
	d.recorder.IncRequest(req.Type, outcome)
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request) any {
	switch req.Type {
	case ReqGetState:
		return d.handleGetState()
	case ReqCheckAccess:
		return d.handleCheckAccess()
	case ReqVerifyPin:
		return d.handleVerifyPin(ctx, req)
	case ReqUnlock:
		return d.handleUnlock(ctx, req)
	case ReqSetPin:
		return d.handleSetPin(ctx, req)
	case ReqChangePin:
		return d.handleChangePin(ctx, req)
	case ReqInitiateRecovery:
		return d.handleInitiateRecovery(ctx)
	case ReqCancelRecovery:
		return d.handleCancelRecovery(ctx)
	case ReqGetConfig:
		return d.handleGetConfig()
	case ReqSetSchedule:
		return d.handleSetSchedule(ctx, req)
	case ReqResetAll:
		return d.handleResetAll(ctx, req)
	default:
		return errorResponse("unknown request type")
	}
}

func (d *Dispatcher) handleGetState() StateResponse {
	snap := d.store.Snapshot()
	now := d.clock.Now()
	trusted := now.Add(snap.NTPOffset + snap.DebugOffset)

	resp := StateResponse{
		Envelope:          ok("state"),
		IsBlocking:        d.engine.ShouldBlock(),
		IsSetupMode:       snap.IsSetupMode(),
		BlockStartMinutes: snap.BlockStartMinutes,
		BlockEndMinutes:   snap.BlockEndMinutes,
		CurrentTimeUTC:    now.UTC(),
		TrustedTimeUTC:    trusted.UTC(),
		RecoveryActive:    snap.RecoveryActive,
		FailedAttempts:    snap.FailedAttempts,
	}

	if d.engine.InWindow() {
		end := d.engine.BlockEndTime()
		resp.BlockEndsAtLocal = &end
	}
	if snap.TempUnlockExpiresAt != nil {
		if trusted.Before(*snap.TempUnlockExpiresAt) {
			resp.TempUnlockActive = true
		}
		utc := snap.TempUnlockExpiresAt.UTC()
		resp.TempUnlockExpiresUTC = &utc
	}
	if snap.RecoveryExpiresAt != nil {
		utc := snap.RecoveryExpiresAt.UTC()
		resp.RecoveryExpiresUTC = &utc
	}
	if snap.LockoutUntil != nil && now.Before(*snap.LockoutUntil) {
		resp.IsLockedOut = true
		utc := snap.LockoutUntil.UTC()
		resp.LockoutUntilUTC = &utc
	}
	return resp
}

// handleCheckAccess always allows: denying here would lock the settings
// panel out exactly when the user needs it to grant an unlock. The reason
// field is diagnostic only.
func (d *Dispatcher) handleCheckAccess() AccessCheckResponse {
	resp := AccessCheckResponse{Envelope: ok("access_check"), Allowed: true}
	if d.engine.InWindow() {
		resp.Reason = "within block window"
	}
	return resp
}

func (d *Dispatcher) handleVerifyPin(ctx context.Context, req *Request) any {
	res, err := d.security.VerifyPin(req.Pin)
	if err != nil {
		return errorResponse(err.Error())
	}
	d.recordVerify(ctx, res)
	return d.pinResult(res)
}

func (d *Dispatcher) handleUnlock(ctx context.Context, req *Request) any {
	res, err := d.security.VerifyPin(req.Pin)
	if err != nil {
		return errorResponse(err.Error())
	}
	d.recordVerify(ctx, res)
	if !res.Valid {
		return d.pinResult(res)
	}

	expires, err := d.unlock.Grant(unlock.Duration(req.Duration))
	if err != nil {
		return errorResponse(err.Error())
	}

	d.auditRecord(ctx, audit.EventUnlockGranted, map[string]any{
		"duration":   req.Duration,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
	return ack(fmt.Sprintf("unlocked until %s", expires.UTC().Format(time.RFC3339)))
}

func (d *Dispatcher) handleSetPin(ctx context.Context, req *Request) any {
	if req.Pin != req.ConfirmPin {
		return errorResponse("pin confirmation does not match")
	}
	if err := d.security.SetPin(req.Pin); err != nil {
		return errorResponse(err.Error())
	}
	d.auditRecord(ctx, audit.EventPinSet, nil)
	return ack("pin set")
}

func (d *Dispatcher) handleChangePin(ctx context.Context, req *Request) any {
	res, err := d.security.ChangePin(req.CurrentPin, req.NewPin)
	if err != nil {
		return errorResponse(err.Error())
	}
	d.recordVerify(ctx, res)
	if !res.Valid {
		return d.pinResult(res)
	}
	d.auditRecord(ctx, audit.EventPinChanged, nil)
	return ack("pin changed")
}

func (d *Dispatcher) handleInitiateRecovery(ctx context.Context) any {
	expires, err := d.security.InitiateRecovery()
	if err != nil {
		return errorResponse(err.Error())
	}
	d.auditRecord(ctx, audit.EventRecoveryInitiated, map[string]any{
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
	return ack(fmt.Sprintf("recovery completes at %s", expires.UTC().Format(time.RFC3339)))
}

func (d *Dispatcher) handleCancelRecovery(ctx context.Context) any {
	if err := d.security.CancelRecovery(); err != nil {
		return errorResponse(err.Error())
	}
	d.auditRecord(ctx, audit.EventRecoveryCancelled, nil)
	return ack("recovery cancelled")
}

func (d *Dispatcher) handleGetConfig() ConfigResponse {
	snap := d.store.Snapshot()
	resp := ConfigResponse{
		Envelope:          ok("config"),
		BlockStartMinutes: snap.BlockStartMinutes,
		BlockEndMinutes:   snap.BlockEndMinutes,
		IsSetupMode:       snap.IsSetupMode(),
		RecoveryActive:    snap.RecoveryActive,
	}
	if snap.RecoveryExpiresAt != nil {
		utc := snap.RecoveryExpiresAt.UTC()
		resp.RecoveryExpiresUTC = &utc
	}
	return resp
}

func (d *Dispatcher) handleSetSchedule(ctx context.Context, req *Request) any {
	if req.BlockStartMinutes == nil || req.BlockEndMinutes == nil {
		return errorResponse("block_start_minutes and block_end_minutes are required")
	}
	start, end := *req.BlockStartMinutes, *req.BlockEndMinutes
	if start < 0 || start >= 1440 || end < 0 || end >= 1440 {
		return errorResponse("schedule minutes must be in [0,1440)")
	}

	if resp := d.requirePin(ctx, req.Pin); resp != nil {
		return resp
	}

	if err := d.store.Update(func(s *state.PersistedState) {
		s.BlockStartMinutes = start
		s.BlockEndMinutes = end
	}); err != nil {
		return errorResponse(err.Error())
	}

	d.auditRecord(ctx, audit.EventScheduleChanged, map[string]any{
		"block_start_minutes": start,
		"block_end_minutes":   end,
	})
	return ack("schedule updated")
}

func (d *Dispatcher) handleResetAll(ctx context.Context, req *Request) any {
	if resp := d.requirePin(ctx, req.Pin); resp != nil {
		return resp
	}
	if err := d.store.Reset(); err != nil {
		return errorResponse(err.Error())
	}
	d.auditRecord(ctx, audit.EventReset, nil)
	return ack("state reset to defaults")
}

// requirePin enforces the dispatch policy for security-sensitive requests:
// PIN verification is required unless the store is in setup mode (first-run
// bootstrap). Returns a non-nil response when the request must be refused.
func (d *Dispatcher) requirePin(ctx context.Context, pin string) any {
	if d.store.Snapshot().IsSetupMode() {
		return nil
	}
	res, err := d.security.VerifyPin(pin)
	if err != nil {
		return errorResponse(err.Error())
	}
	d.recordVerify(ctx, res)
	if !res.Valid {
		return d.pinResult(res)
	}
	return nil
}

func (d *Dispatcher) pinResult(res security.VerifyResult) PinResultResponse {
	resp := PinResultResponse{
		Envelope:          ok("pin_result"),
		Valid:             res.Valid,
		IsLockedOut:       res.LockedOut,
		IsRateLimited:     res.RateLimited,
		AttemptsRemaining: res.AttemptsRemaining,
	}
	if res.SetupRequired {
		resp.Error = "setup required"
	}
	if res.LockedOut {
		secs := int64(res.LockoutRemaining.Seconds())
		resp.LockoutRemainingSeconds = &secs
	}
	return resp
}

func (d *Dispatcher) recordVerify(ctx context.Context, res security.VerifyResult) {
	var outcome string
	var event audit.Event
	switch {
	case res.Valid:
		outcome, event = "valid", audit.EventPinVerifyOK
	case res.SetupRequired:
		outcome, event = "setup_required", audit.EventPinVerifyFail
	case res.LockedOut:
		outcome, event = "locked_out", audit.EventLockout
	case res.RateLimited:
		outcome, event = "rate_limited", audit.EventRateLimited
	default:
		outcome, event = "invalid", audit.EventPinVerifyFail
	}
	d.recorder.IncPinVerify(outcome)
	d.auditRecord(ctx, event, map[string]any{"attempts_remaining": res.AttemptsRemaining})
}

func (d *Dispatcher) auditRecord(ctx context.Context, event audit.Event, detail map[string]any) {
	if err := d.audit.Record(ctx, event, detail); err != nil {
		slog.Warn("Audit record failed", "event", string(event), "error", err)
	}
}
