package hypergrid

import "fmt"

// ConfigInvalidError surfaces a configuration problem detected during
// Load/Validate. The engine never starts when this is returned.
type ConfigInvalidError struct {
	Reason string
}

func (e *ConfigInvalidError) Error() string {
	return fmt.Sprintf("config invalid: %s", e.Reason)
}

// PriceUnavailableError means no usable PriceSample exists for a
// required symbol. The affected pair's tick is skipped.
type PriceUnavailableError struct {
	Symbol string
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("price unavailable for %s", e.Symbol)
}

// QuoteFailReason distinguishes why a quote attempt failed.
type QuoteFailReason int

const (
	NoLiquidity QuoteFailReason = iota
	RPCError
)

func (r QuoteFailReason) String() string {
	if r == NoLiquidity {
		return "no_liquidity"
	}
	return "rpc_error"
}

// QuoteFailedError means the AMM client could not produce a quote.
type QuoteFailedError struct {
	Reason QuoteFailReason
	Err    error
}

func (e *QuoteFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("quote failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("quote failed (%s)", e.Reason)
}

func (e *QuoteFailedError) Unwrap() error { return e.Err }

// ValidationFailedError is returned by the Trade Validator on the
// first guard it fails.
type ValidationFailedError struct {
	Reason string
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// SwapRevertedError means the submitted transaction reverted on-chain.
// The identical intent is never retried.
type SwapRevertedError struct {
	TxHash string
}

func (e *SwapRevertedError) Error() string {
	return fmt.Sprintf("swap reverted: %s", e.TxHash)
}

// SwapTransportError is a transport-level RPC failure while submitting
// or awaiting a swap. Retried up to three times with linear backoff
// before being treated as SwapRevertedError.
type SwapTransportError struct {
	Err error
}

func (e *SwapTransportError) Error() string {
	return fmt.Sprintf("swap transport error: %v", e.Err)
}

func (e *SwapTransportError) Unwrap() error { return e.Err }

// BalanceInsufficientError means the signer lacks sufficient on-chain
// balance of the in-token. The candidate is disabled; the pair
// continues on the opposite side only.
type BalanceInsufficientError struct {
	Token string
	Have  string
	Need  string
}

func (e *BalanceInsufficientError) Error() string {
	return fmt.Sprintf("insufficient %s balance: have %s, need %s", e.Token, e.Have, e.Need)
}

// BudgetExceededError means the candidate would push the pair's
// committed-minus-released exposure past its allocation.
type BudgetExceededError struct {
	PairID string
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("budget exceeded for pair %s", e.PairID)
}

// EmergencyStopReason distinguishes why the Scheduler entered draining.
type EmergencyStopReason int

const (
	DailyLoss EmergencyStopReason = iota
	Manual
)

func (r EmergencyStopReason) String() string {
	if r == DailyLoss {
		return "daily_loss"
	}
	return "manual"
}

// EmergencyStopError transitions the Scheduler to draining: no new
// candidates, in-flight receipts are awaited, then it exits.
type EmergencyStopError struct {
	Reason EmergencyStopReason
}

func (e *EmergencyStopError) Error() string {
	return fmt.Sprintf("emergency stop: %s", e.Reason)
}
