package dex

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrUnknownEvent is returned when a log's topic0 does not belong to
	// the event set of the requested pool variant.
	ErrUnknownEvent = errors.New("unknown event signature")
	// ErrMissingTopics is returned when a log carries no topics.
	ErrMissingTopics = errors.New("missing topics")
)

// Decoder turns raw logs into typed pool and factory events.
type Decoder struct {
	v2Pair    abi.ABI
	v2Factory abi.ABI
	v3Pool    abi.ABI
	v3Factory abi.ABI

	v2PoolTopics map[common.Hash]string
	v3PoolTopics map[common.Hash]string
}

// NewDecoder builds a Decoder over the known pool and factory ABIs.
func NewDecoder() (*Decoder, error) {
	if err := loadABIs(); err != nil {
		return nil, err
	}

	d := &Decoder{
		v2Pair:    parsedABIs.v2Pair,
		v2Factory: parsedABIs.v2Factory,
		v3Pool:    parsedABIs.v3Pool,
		v3Factory: parsedABIs.v3Factory,
	}

	d.v2PoolTopics = map[common.Hash]string{
		d.v2Pair.Events["Sync"].ID: "Sync",
		d.v2Pair.Events["Swap"].ID: "Swap",
		d.v2Pair.Events["Mint"].ID: "Mint",
		d.v2Pair.Events["Burn"].ID: "Burn",
	}
	d.v3PoolTopics = map[common.Hash]string{
		d.v3Pool.Events["Swap"].ID:       "Swap",
		d.v3Pool.Events["Mint"].ID:       "Mint",
		d.v3Pool.Events["Burn"].ID:       "Burn",
		d.v3Pool.Events["Initialize"].ID: "Initialize",
	}

	return d, nil
}

// V2PoolTopics returns the topic0 hashes of constant-product pool events.
func (d *Decoder) V2PoolTopics() []common.Hash {
	return []common.Hash{
		d.v2Pair.Events["Sync"].ID,
		d.v2Pair.Events["Swap"].ID,
		d.v2Pair.Events["Mint"].ID,
		d.v2Pair.Events["Burn"].ID,
	}
}

// V3PoolTopics returns the topic0 hashes of concentrated-liquidity pool
// events.
func (d *Decoder) V3PoolTopics() []common.Hash {
	return []common.Hash{
		d.v3Pool.Events["Swap"].ID,
		d.v3Pool.Events["Mint"].ID,
		d.v3Pool.Events["Burn"].ID,
		d.v3Pool.Events["Initialize"].ID,
	}
}

// PairCreatedTopic returns the topic0 of the constant-product factory
// creation event.
func (d *Decoder) PairCreatedTopic() common.Hash {
	return d.v2Factory.Events["PairCreated"].ID
}

// PoolCreatedTopic returns the topic0 of the concentrated-liquidity
// factory creation event.
func (d *Decoder) PoolCreatedTopic() common.Hash {
	return d.v3Factory.Events["PoolCreated"].ID
}

// DecodeV2PoolLog decodes a constant-product pool log. Logs whose topic0
// is outside the variant's event set are rejected, not skipped, so the
// caller can detect schema drift.
func (d *Decoder) DecodeV2PoolLog(log types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, newDecodeError(log, ErrMissingTopics)
	}
	name, ok := d.v2PoolTopics[log.Topics[0]]
	if !ok {
		return nil, newDecodeError(log, fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex()))
	}

	ev, err := d.decodeV2PoolEvent(name, log)
	if err != nil {
		return nil, newDecodeError(log, err)
	}
	return ev, nil
}

func (d *Decoder) decodeV2PoolEvent(name string, log types.Log) (Event, error) {
	event := d.v2Pair.Events[name]
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}

	switch name {
	case "Sync":
		reserve0, err := asBigInt(values, 0)
		if err != nil {
			return nil, err
		}
		reserve1, err := asBigInt(values, 1)
		if err != nil {
			return nil, err
		}
		return V2Sync{Reserve0: reserve0, Reserve1: reserve1}, nil

	case "Swap":
		if len(log.Topics) != 3 {
			return nil, fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
		}
		amount0In, err := asBigInt(values, 0)
		if err != nil {
			return nil, err
		}
		amount1In, err := asBigInt(values, 1)
		if err != nil {
			return nil, err
		}
		amount0Out, err := asBigInt(values, 2)
		if err != nil {
			return nil, err
		}
		amount1Out, err := asBigInt(values, 3)
		if err != nil {
			return nil, err
		}
		return V2Swap{
			Sender:     common.BytesToAddress(log.Topics[1].Bytes()),
			To:         common.BytesToAddress(log.Topics[2].Bytes()),
			Amount0In:  amount0In,
			Amount1In:  amount1In,
			Amount0Out: amount0Out,
			Amount1Out: amount1Out,
		}, nil

	case "Mint":
		if len(log.Topics) != 2 {
			return nil, fmt.Errorf("expected 2 topics, got %d", len(log.Topics))
		}
		amount0, err := asBigInt(values, 0)
		if err != nil {
			return nil, err
		}
		amount1, err := asBigInt(values, 1)
		if err != nil {
			return nil, err
		}
		return V2Mint{
			Sender:  common.BytesToAddress(log.Topics[1].Bytes()),
			Amount0: amount0,
			Amount1: amount1,
		}, nil

	case "Burn":
		if len(log.Topics) != 3 {
			return nil, fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
		}
		amount0, err := asBigInt(values, 0)
		if err != nil {
			return nil, err
		}
		amount1, err := asBigInt(values, 1)
		if err != nil {
			return nil, err
		}
		return V2Burn{
			Sender:  common.BytesToAddress(log.Topics[1].Bytes()),
			To:      common.BytesToAddress(log.Topics[2].Bytes()),
			Amount0: amount0,
			Amount1: amount1,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
}

// DecodeV3PoolLog decodes a concentrated-liquidity pool log.
func (d *Decoder) DecodeV3PoolLog(log types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, newDecodeError(log, ErrMissingTopics)
	}
	name, ok := d.v3PoolTopics[log.Topics[0]]
	if !ok {
		return nil, newDecodeError(log, fmt.Errorf("%w: %s", ErrUnknownEvent, log.Topics[0].Hex()))
	}

	ev, err := d.decodeV3PoolEvent(name, log)
	if err != nil {
		return nil, newDecodeError(log, err)
	}
	return ev, nil
}

func (d *Decoder) decodeV3PoolEvent(name string, log types.Log) (Event, error) {
	event := d.v3Pool.Events[name]
	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return nil, err
	}

	switch name {
	case "Swap":
		if len(log.Topics) != 3 {
			return nil, fmt.Errorf("expected 3 topics, got %d", len(log.Topics))
		}
		amount0, err := asBigInt(values, 0)
		if err != nil {
			return nil, err
		}
		amount1, err := asBigInt(values, 1)
		if err != nil {
			return nil, err
		}
		sqrtPrice, err := asBigInt(values, 2)
		if err != nil {
			return nil, err
		}
		liquidity, err := asBigInt(values, 3)
		if err != nil {
			return nil, err
		}
		tick, err := asTick(values, 4)
		if err != nil {
			return nil, err
		}
		return V3Swap{
			Sender:       common.BytesToAddress(log.Topics[1].Bytes()),
			Recipient:    common.BytesToAddress(log.Topics[2].Bytes()),
			Amount0:      amount0,
			Amount1:      amount1,
			SqrtPriceX96: sqrtPrice,
			Liquidity:    liquidity,
			Tick:         tick,
		}, nil

	case "Mint":
		if len(log.Topics) != 4 {
			return nil, fmt.Errorf("expected 4 topics, got %d", len(log.Topics))
		}
		amount, err := asBigInt(values, 1)
		if err != nil {
			return nil, err
		}
		amount0, err := asBigInt(values, 2)
		if err != nil {
			return nil, err
		}
		amount1, err := asBigInt(values, 3)
		if err != nil {
			return nil, err
		}
		return V3Mint{
			Owner:     common.BytesToAddress(log.Topics[1].Bytes()),
			TickLower: tickFromTopic(log.Topics[2]),
			TickUpper: tickFromTopic(log.Topics[3]),
			Amount:    amount,
			Amount0:   amount0,
			Amount1:   amount1,
		}, nil

	case "Burn":
		if len(log.Topics) != 4 {
			return nil, fmt.Errorf("expected 4 topics, got %d", len(log.Topics))
		}
		amount, err := asBigInt(values, 0)
		if err != nil {
			return nil, err
		}
		amount0, err := asBigInt(values, 1)
		if err != nil {
			return nil, err
		}
		amount1, err := asBigInt(values, 2)
		if err != nil {
			return nil, err
		}
		return V3Burn{
			Owner:     common.BytesToAddress(log.Topics[1].Bytes()),
			TickLower: tickFromTopic(log.Topics[2]),
			TickUpper: tickFromTopic(log.Topics[3]),
			Amount:    amount,
			Amount0:   amount0,
			Amount1:   amount1,
		}, nil

	case "Initialize":
		sqrtPrice, err := asBigInt(values, 0)
		if err != nil {
			return nil, err
		}
		tick, err := asTick(values, 1)
		if err != nil {
			return nil, err
		}
		return V3Initialize{SqrtPriceX96: sqrtPrice, Tick: tick}, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
}

// DecodePairCreated decodes a constant-product factory creation log.
func (d *Decoder) DecodePairCreated(log types.Log) (PairCreated, error) {
	event := d.v2Factory.Events["PairCreated"]
	if len(log.Topics) != 3 || log.Topics[0] != event.ID {
		return PairCreated{}, newDecodeError(log, fmt.Errorf("%w: not PairCreated", ErrUnknownEvent))
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return PairCreated{}, newDecodeError(log, err)
	}
	pair, err := asAddress(values, 0)
	if err != nil {
		return PairCreated{}, newDecodeError(log, err)
	}

	return PairCreated{
		Token0: common.BytesToAddress(log.Topics[1].Bytes()),
		Token1: common.BytesToAddress(log.Topics[2].Bytes()),
		Pair:   pair,
	}, nil
}

// DecodePoolCreated decodes a concentrated-liquidity factory creation log.
func (d *Decoder) DecodePoolCreated(log types.Log) (PoolCreated, error) {
	event := d.v3Factory.Events["PoolCreated"]
	if len(log.Topics) != 4 || log.Topics[0] != event.ID {
		return PoolCreated{}, newDecodeError(log, fmt.Errorf("%w: not PoolCreated", ErrUnknownEvent))
	}

	values, err := unpackNonIndexed(event, log.Data)
	if err != nil {
		return PoolCreated{}, newDecodeError(log, err)
	}
	tickSpacing, err := asTick(values, 0)
	if err != nil {
		return PoolCreated{}, newDecodeError(log, err)
	}
	poolAddr, err := asAddress(values, 1)
	if err != nil {
		return PoolCreated{}, newDecodeError(log, err)
	}

	return PoolCreated{
		Token0:      common.BytesToAddress(log.Topics[1].Bytes()),
		Token1:      common.BytesToAddress(log.Topics[2].Bytes()),
		Fee:         new(big.Int).SetBytes(log.Topics[3].Bytes()).Uint64(),
		TickSpacing: tickSpacing,
		Pool:        poolAddr,
	}, nil
}

func newDecodeError(log types.Log, err error) *DecodeError {
	de := &DecodeError{
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash,
		LogIndex:    log.Index,
		Address:     log.Address,
		Err:         err,
	}
	if len(log.Topics) > 0 {
		de.Topic0 = log.Topics[0]
	}
	return de
}

func unpackNonIndexed(event abi.Event, data []byte) ([]interface{}, error) {
	values, err := event.Inputs.NonIndexed().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", event.Name, err)
	}
	return values, nil
}

func asBigInt(values []interface{}, i int) (*big.Int, error) {
	if i >= len(values) {
		return nil, fmt.Errorf("missing value at index %d", i)
	}
	v, ok := values[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("value %d is %T, expected *big.Int", i, values[i])
	}
	return new(big.Int).Set(v), nil
}

func asAddress(values []interface{}, i int) (common.Address, error) {
	if i >= len(values) {
		return common.Address{}, fmt.Errorf("missing value at index %d", i)
	}
	v, ok := values[i].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("value %d is %T, expected address", i, values[i])
	}
	return v, nil
}

func asTick(values []interface{}, i int) (int64, error) {
	v, err := asBigInt(values, i)
	if err != nil {
		return 0, err
	}
	if !v.IsInt64() {
		return 0, fmt.Errorf("tick out of int64 range: %s", v)
	}
	return v.Int64(), nil
}

// tickFromTopic decodes an int24 packed into an indexed topic.
func tickFromTopic(topic common.Hash) int64 {
	v := new(big.Int).SetBytes(topic.Bytes())
	// Sign-extend from 256 bits: topics carry int24 values two's
	// complement encoded over the full word.
	if v.Bit(255) == 1 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return v.Int64()
}
