package feecollector

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ava-labs/libevm/accounts/abi"
	"github.com/ava-labs/libevm/common"
	libevmtypes "github.com/ava-labs/libevm/core/types"

	"github.com/chainfees/fee-indexer/pkg/types"
)

// EventName is the name of the decoded event in the FeeCollector ABI.
const EventName = "FeesCollected"

// feeCollectorABI covers the single event the indexer consumes.
const feeCollectorABI = `[{
	"anonymous": false,
	"type": "event",
	"name": "FeesCollected",
	"inputs": [
		{"indexed": true, "internalType": "address", "name": "_token", "type": "address"},
		{"indexed": true, "internalType": "address", "name": "_integrator", "type": "address"},
		{"indexed": false, "internalType": "uint256", "name": "_integratorFee", "type": "uint256"},
		{"indexed": false, "internalType": "uint256", "name": "_lifiFee", "type": "uint256"}
	]
}]`

var (
	ErrUnexpectedEmitter = errors.New("log emitted by unexpected contract")
	ErrUnexpectedEvent   = errors.New("log is not a FeesCollected event")
	ErrMalformedLog      = errors.New("malformed FeesCollected log")
)

// feesCollected mirrors the event arguments; field names follow the ABI's camel-cased inputs.
type feesCollected struct {
	Token         common.Address
	Integrator    common.Address
	IntegratorFee *big.Int
	LifiFee       *big.Int
}

// Decoder turns FeeCollector logs into RawEvents.
type Decoder struct {
	contract common.Address
	abi      abi.ABI
	event    abi.Event
	indexed  abi.Arguments
}

// NewDecoder returns a decoder accepting logs emitted by contract only.
func NewDecoder(contract common.Address) (*Decoder, error) {
	parsed, err := abi.JSON(strings.NewReader(feeCollectorABI))
	if err != nil {
		return nil, fmt.Errorf("parse FeeCollector abi: %w", err)
	}
	event, ok := parsed.Events[EventName]
	if !ok {
		return nil, fmt.Errorf("event %s missing from FeeCollector abi", EventName)
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return &Decoder{contract: contract, abi: parsed, event: event, indexed: indexed}, nil
}

// Topic returns the event signature hash, topic 0 of every FeesCollected log.
func (d *Decoder) Topic() common.Hash {
	return d.event.ID
}

// Decode validates and decodes one log.
func (d *Decoder) Decode(l libevmtypes.Log) (types.RawEvent, error) {
	if l.Address != d.contract {
		return types.RawEvent{}, fmt.Errorf("%w: %s", ErrUnexpectedEmitter, l.Address.Hex())
	}
	if len(l.Topics) == 0 || l.Topics[0] != d.event.ID {
		return types.RawEvent{}, ErrUnexpectedEvent
	}
	if len(l.Topics) != 1+len(d.indexed) {
		return types.RawEvent{}, fmt.Errorf("%w: tx %s log %d has %d topics",
			ErrMalformedLog, l.TxHash.Hex(), l.Index, len(l.Topics))
	}

	var out feesCollected
	if err := d.abi.UnpackIntoInterface(&out, EventName, l.Data); err != nil {
		return types.RawEvent{}, fmt.Errorf("%w: tx %s log %d: %w", ErrMalformedLog, l.TxHash.Hex(), l.Index, err)
	}
	if err := abi.ParseTopics(&out, d.indexed, l.Topics[1:]); err != nil {
		return types.RawEvent{}, fmt.Errorf("%w: tx %s log %d: %w", ErrMalformedLog, l.TxHash.Hex(), l.Index, err)
	}

	ev := types.RawEvent{
		TxHash:        l.TxHash,
		BlockNumber:   l.BlockNumber,
		LogIndex:      uint64(l.Index),
		Token:         out.Token,
		Integrator:    out.Integrator,
		IntegratorFee: out.IntegratorFee,
		LifiFee:       out.LifiFee,
	}
	if err := ev.Validate(); err != nil {
		return types.RawEvent{}, fmt.Errorf("%w: tx %s log %d: %w", ErrMalformedLog, l.TxHash.Hex(), l.Index, err)
	}
	return ev, nil
}
