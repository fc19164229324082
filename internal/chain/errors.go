package chain

import (
	"errors"
	"fmt"
	"strings"
)

// RevertError is a business-rule rejection from the contract. The reason
// string comes from the contract's require/revert message; callers match on
// it to distinguish expected outcomes ("already registered") from real
// failures.
type RevertError struct {
	Method string
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("chain: %s reverted", e.Method)
	}
	return fmt.Sprintf("chain: %s reverted: %s", e.Method, e.Reason)
}

// TimeoutError means the confirmation wait expired. The transaction may still
// mine later; callers must re-query state before retrying the same logical
// operation.
type TimeoutError struct {
	Method string
	TxHash string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("chain: %s confirmation timed out (tx %s)", e.Method, e.TxHash)
}

// SenderUnavailableError is a configuration fault: the requested sender can
// neither be signed for locally nor by the connected node. Never retried
// automatically.
type SenderUnavailableError struct {
	Address     string
	Label       string
	Remediation string
}

func (e *SenderUnavailableError) Error() string {
	msg := fmt.Sprintf("chain: no signing key for %s address %s", e.Label, e.Address)
	if e.Remediation != "" {
		msg += ": " + e.Remediation
	}
	return msg
}

// NonceConflictError reports that a send kept colliding on nonce assignment
// after the adapter's bounded retries.
type NonceConflictError struct {
	Method  string
	Sender  string
	Retries int
	Err     error
}

func (e *NonceConflictError) Error() string {
	return fmt.Sprintf("chain: %s from %s failed after %d nonce retries: %v", e.Method, e.Sender, e.Retries, e.Err)
}

func (e *NonceConflictError) Unwrap() error { return e.Err }

// IsRevert reports whether err is a contract revert, optionally extracting it.
func IsRevert(err error) (*RevertError, bool) {
	var revert *RevertError
	if errors.As(err, &revert) {
		return revert, true
	}
	return nil, false
}

// IsAlreadyRegistered matches revert reasons indicating the entity exists.
// Contracts phrase this differently per entity ("Teacher already registered",
// "Student already exists"), so matching is substring based.
func IsAlreadyRegistered(err error) bool {
	revert, ok := IsRevert(err)
	if !ok {
		return false
	}
	reason := strings.ToLower(revert.Reason)
	return strings.Contains(reason, "already registered") || strings.Contains(reason, "already exists")
}

// IsNotFound matches revert reasons indicating a missing entity.
func IsNotFound(err error) bool {
	revert, ok := IsRevert(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(revert.Reason), "not found")
}

// IsNoFeedback matches the contract's empty-average revert.
func IsNoFeedback(err error) bool {
	revert, ok := IsRevert(err)
	if !ok {
		return false
	}
	return strings.Contains(strings.ToLower(revert.Reason), "no feedback")
}

// IsTimeout reports whether err is a confirmation timeout.
func IsTimeout(err error) bool {
	var timeout *TimeoutError
	return errors.As(err, &timeout)
}

// isNonceConflict matches provider errors caused by stale or duplicate
// nonces. These are retried with a freshly fetched pending nonce.
func isNonceConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "nonce too low") ||
		strings.Contains(msg, "nonce too high") ||
		strings.Contains(msg, "replacement transaction underpriced") ||
		strings.Contains(msg, "already known") ||
		strings.Contains(msg, "same nonce")
}

// revertReasonFromError pulls a reason string out of a provider error. Nodes
// differ: some return ABI-encoded revert data (handled elsewhere), others
// embed the reason in the error message.
func revertReasonFromError(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	idx := strings.Index(lower, "revert")
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimSpace(msg[idx+len("revert"):])
	reason = strings.TrimPrefix(reason, ":")
	reason = strings.TrimPrefix(reason, "ed:")
	return strings.TrimSpace(reason), true
}
