// Package ipc implements the local control protocol: newline-delimited
// JSON over a unix socket, one tagged request per line, exactly one tagged
// response per request.
package ipc

import "time"

// Request tags understood by the dispatcher.
const (
	ReqGetState         = "get_state"
	ReqCheckAccess      = "check_access"
	ReqVerifyPin        = "verify_pin"
	ReqUnlock           = "unlock"
	ReqSetPin           = "set_pin"
	ReqChangePin        = "change_pin"
	ReqInitiateRecovery = "initiate_recovery"
	ReqCancelRecovery   = "cancel_recovery"
	ReqGetConfig        = "get_config"
	ReqSetSchedule      = "set_schedule"
	ReqResetAll         = "reset_all"
)

// Request is the tolerant union of every request shape. Unknown tags fall
// through to the dispatcher's default error path; fields irrelevant to a
// tag are simply ignored.
type Request struct {
	Type string `json:"type"`

	Pin        string `json:"pin,omitempty"`
	ConfirmPin string `json:"confirm_pin,omitempty"`
	CurrentPin string `json:"current_pin,omitempty"`
	NewPin     string `json:"new_pin,omitempty"`

	Duration string `json:"duration,omitempty"`

	BlockStartMinutes *int `json:"block_start_minutes,omitempty"`
	BlockEndMinutes   *int `json:"block_end_minutes,omitempty"`
}

// Envelope carries the fields every response has.
type Envelope struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StateResponse answers get_state.
type StateResponse struct {
	Envelope
	IsBlocking           bool       `json:"is_blocking"`
	IsSetupMode          bool       `json:"is_setup_mode"`
	BlockStartMinutes    int        `json:"block_start_minutes"`
	BlockEndMinutes      int        `json:"block_end_minutes"`
	CurrentTimeUTC       time.Time  `json:"current_time_utc"`
	TrustedTimeUTC       time.Time  `json:"trusted_time_utc"`
	BlockEndsAtLocal     *time.Time `json:"block_ends_at_local,omitempty"`
	TempUnlockActive     bool       `json:"temp_unlock_active"`
	TempUnlockExpiresUTC *time.Time `json:"temp_unlock_expires_utc,omitempty"`
	RecoveryActive       bool       `json:"recovery_active"`
	RecoveryExpiresUTC   *time.Time `json:"recovery_expires_utc,omitempty"`
	IsLockedOut          bool       `json:"is_locked_out"`
	LockoutUntilUTC      *time.Time `json:"lockout_until_utc,omitempty"`
	FailedAttempts       int        `json:"failed_attempts"`
}

// PinResultResponse answers verify_pin and any PIN-gated request whose
// verification failed, carrying countdown detail for front-ends.
type PinResultResponse struct {
	Envelope
	Valid                   bool   `json:"valid"`
	IsLockedOut             bool   `json:"is_locked_out"`
	IsRateLimited           bool   `json:"is_rate_limited"`
	AttemptsRemaining       int    `json:"attempts_remaining"`
	LockoutRemainingSeconds *int64 `json:"lockout_remaining_seconds,omitempty"`
}

// ConfigResponse answers get_config.
type ConfigResponse struct {
	Envelope
	BlockStartMinutes  int        `json:"block_start_minutes"`
	BlockEndMinutes    int        `json:"block_end_minutes"`
	IsSetupMode        bool       `json:"is_setup_mode"`
	RecoveryActive     bool       `json:"recovery_active"`
	RecoveryExpiresUTC *time.Time `json:"recovery_expires_utc,omitempty"`
}

// AccessCheckResponse answers check_access.
type AccessCheckResponse struct {
	Envelope
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// AckResponse acknowledges a state-changing request.
type AckResponse struct {
	Envelope
	Message string `json:"message"`
}

// ErrorResponse is the generic failure answer; the connection stays open.
type ErrorResponse struct {
	Envelope
}

func ok(responseType string) Envelope {
	return Envelope{Type: responseType, Success: true}
}

func errorResponse(message string) ErrorResponse {
	return ErrorResponse{Envelope{Type: "error", Success: false, Error: message}}
}

func ack(message string) AckResponse {
	return AckResponse{Envelope: ok("ack"), Message: message}
}
