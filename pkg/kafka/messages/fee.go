// Package messages holds the payloads published on the fee stream.
package messages

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/chainfees/fee-indexer/pkg/kafka/message"
	"github.com/chainfees/fee-indexer/pkg/types"
)

const (
	FeeCollectedType    = "fee.collected"
	FeeCollectedVersion = 1

	// ChainIDHeader carries the EVM chain ID of the event.
	ChainIDHeader = "evm-chain-id"
)

// FeeCollected is the payload of a fee.collected message.
type FeeCollected struct {
	EVMChainID uint64 `json:"evmChainId"`
	types.FeeEvent
}

// EncodeFeeCollected returns the message key and value for ev. The key is the event's natural key so
// consumers can deduplicate redeliveries.
func EncodeFeeCollected(evmChainID uint64, ev types.FeeEvent, now time.Time) (key, value []byte, err error) {
	k := ev.Key()
	env, err := message.Seal(FeeCollectedType, FeeCollectedVersion, k, now.UTC().Format(time.RFC3339), FeeCollected{
		EVMChainID: evmChainID,
		FeeEvent:   ev,
	})
	if err != nil {
		return nil, nil, err
	}
	value, err = json.Marshal(env)
	if err != nil {
		return nil, nil, fmt.Errorf("encode envelope: %w", err)
	}
	return []byte(k), value, nil
}

// DecodeFeeCollected parses a fee.collected message value.
func DecodeFeeCollected(value []byte) (FeeCollected, error) {
	env, err := message.Open(value)
	if err != nil {
		return FeeCollected{}, err
	}
	if err := env.Expect(FeeCollectedType, FeeCollectedVersion); err != nil {
		return FeeCollected{}, err
	}
	var fc FeeCollected
	if err := json.Unmarshal(env.Data, &fc); err != nil {
		return FeeCollected{}, fmt.Errorf("decode %s payload: %w", FeeCollectedType, err)
	}
	return fc, nil
}

// ChainIDHeaderValue formats the chain ID header value.
func ChainIDHeaderValue(evmChainID uint64) string {
	return strconv.FormatUint(evmChainID, 10)
}
