package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ava-labs/libevm/common"
	"github.com/shopspring/decimal"
)

var (
	ErrMissingAmount  = errors.New("fee amount is missing")
	ErrNegativeAmount = errors.New("fee amount is negative")
)

// RawEvent is a decoded FeesCollected log as returned by the event source. It is the only shape
// the scraper accepts from the chain side.
type RawEvent struct {
	TxHash        common.Hash
	BlockNumber   uint64
	LogIndex      uint64
	Token         common.Address
	Integrator    common.Address
	IntegratorFee *big.Int
	LifiFee       *big.Int
}

// Validate checks the fields the decoder cannot guarantee by type alone.
func (e *RawEvent) Validate() error {
	if e.IntegratorFee == nil {
		return fmt.Errorf("integrator fee: %w", ErrMissingAmount)
	}
	if e.LifiFee == nil {
		return fmt.Errorf("lifi fee: %w", ErrMissingAmount)
	}
	if e.IntegratorFee.Sign() < 0 {
		return fmt.Errorf("integrator fee: %w", ErrNegativeAmount)
	}
	if e.LifiFee.Sign() < 0 {
		return fmt.Errorf("lifi fee: %w", ErrNegativeAmount)
	}
	return nil
}

// FeeEvent is the canonical, storage-ready representation of one FeesCollected occurrence.
// (TxHash, LogIndex) identifies it. Amounts are base-10 integer strings since they routinely
// exceed 64 bits.
type FeeEvent struct {
	BlockNumber   uint64 `json:"blockNumber"`
	TxHash        string `json:"txHash"`
	LogIndex      uint64 `json:"logIndex"`
	Token         string `json:"token"`
	Integrator    string `json:"integrator"`
	IntegratorFee string `json:"integratorFee"`
	LifiFee       string `json:"lifiFee"`
}

// Key returns the natural uniqueness key of the event.
func (e FeeEvent) Key() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}

// FeeEventFromRaw maps a validated RawEvent to a FeeEvent.
func FeeEventFromRaw(raw *RawEvent) FeeEvent {
	return FeeEvent{
		BlockNumber:   raw.BlockNumber,
		TxHash:        raw.TxHash.Hex(),
		LogIndex:      raw.LogIndex,
		Token:         raw.Token.Hex(),
		Integrator:    raw.Integrator.Hex(),
		IntegratorFee: FormatAmount(raw.IntegratorFee),
		LifiFee:       FormatAmount(raw.LifiFee),
	}
}

// FormatAmount renders an on-chain integer amount as a base-10 string. A nil amount renders as "0".
func FormatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// ParseAmount parses a stored amount. Stores may render integral numerics with a zero fraction
// ("5.000") or an exponent; those are accepted. Fractional, negative or malformed values are not.
func ParseAmount(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !d.IsInteger() {
		return nil, fmt.Errorf("parse amount %q: not an integer", s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("parse amount %q: %w", s, ErrNegativeAmount)
	}
	return d.BigInt(), nil
}

// NormalizeAmounts validates both amounts of an event read back from a store and rewrites them in
// canonical base-10 form.
func (e *FeeEvent) NormalizeAmounts() error {
	integratorFee, err := ParseAmount(e.IntegratorFee)
	if err != nil {
		return fmt.Errorf("integrator fee: %w", err)
	}
	lifiFee, err := ParseAmount(e.LifiFee)
	if err != nil {
		return fmt.Errorf("lifi fee: %w", err)
	}
	e.IntegratorFee = integratorFee.String()
	e.LifiFee = lifiFee.String()
	return nil
}

// NormalizeAddress returns the EIP-55 checksummed form of a hex address.
func NormalizeAddress(addr string) string {
	return common.HexToAddress(addr).Hex()
}
