package pool

import (
	"fmt"
	"math/big"
	"sort"

	"poolSync/internal/dex"
	"poolSync/internal/swapmath"
)

// ApplyEvent folds a decoded contract event into the pool and returns the
// resulting state. The receiver is left untouched so the caller can keep
// it as the prior state for delta recording. Events outside the variant's
// set are rejected with ErrUnexpectedEvent.
func (p Pool) ApplyEvent(ev dex.Event) (Pool, error) {
	switch p.Variant {
	case ConstantProduct:
		return p.applyV2Event(ev)
	case ConcentratedLiquidity:
		return p.applyV3Event(ev)
	default:
		return Pool{}, fmt.Errorf("unhandled variant %s", p.Variant)
	}
}

func (p Pool) applyV2Event(ev dex.Event) (Pool, error) {
	next := p

	switch e := ev.(type) {
	case dex.V2Sync:
		// Sync carries absolute reserves and is emitted after every
		// reserve-changing action, so it is authoritative.
		next.Reserve0 = new(big.Int).Set(e.Reserve0)
		next.Reserve1 = new(big.Int).Set(e.Reserve1)

	case dex.V2Swap:
		next.Reserve0 = new(big.Int).Add(p.Reserve0, e.Amount0In)
		next.Reserve0.Sub(next.Reserve0, e.Amount0Out)
		next.Reserve1 = new(big.Int).Add(p.Reserve1, e.Amount1In)
		next.Reserve1.Sub(next.Reserve1, e.Amount1Out)

	case dex.V2Mint:
		next.Reserve0 = new(big.Int).Add(p.Reserve0, e.Amount0)
		next.Reserve1 = new(big.Int).Add(p.Reserve1, e.Amount1)

	case dex.V2Burn:
		next.Reserve0 = new(big.Int).Sub(p.Reserve0, e.Amount0)
		next.Reserve1 = new(big.Int).Sub(p.Reserve1, e.Amount1)

	default:
		return Pool{}, fmt.Errorf("%w: %s on %s pool %s", ErrUnexpectedEvent, ev.EventName(), p.Variant, p.Address.Hex())
	}

	if next.Reserve0.Sign() < 0 || next.Reserve1.Sign() < 0 {
		return Pool{}, fmt.Errorf("%w: %s on pool %s", ErrNegativeReserves, ev.EventName(), p.Address.Hex())
	}
	return next, nil
}

func (p Pool) applyV3Event(ev dex.Event) (Pool, error) {
	next := p

	switch e := ev.(type) {
	case dex.V3Initialize:
		next.SqrtPriceX96 = new(big.Int).Set(e.SqrtPriceX96)
		next.Tick = e.Tick

	case dex.V3Swap:
		// The event reports price, tick, and active liquidity after the
		// swap; no tick bookkeeping is needed.
		next.SqrtPriceX96 = new(big.Int).Set(e.SqrtPriceX96)
		next.Tick = e.Tick
		next.Liquidity = new(big.Int).Set(e.Liquidity)

	case dex.V3Mint:
		ticks := updateTick(p.Ticks, e.TickLower, e.Amount, false)
		ticks = updateTick(ticks, e.TickUpper, e.Amount, true)
		next.Ticks = ticks
		if p.Tick >= e.TickLower && p.Tick < e.TickUpper {
			liquidity, err := swapmath.AddDelta(p.Liquidity, e.Amount)
			if err != nil {
				return Pool{}, fmt.Errorf("mint on pool %s: %w", p.Address.Hex(), err)
			}
			next.Liquidity = liquidity
		}

	case dex.V3Burn:
		neg := new(big.Int).Neg(e.Amount)
		ticks := updateTick(p.Ticks, e.TickLower, neg, false)
		ticks = updateTick(ticks, e.TickUpper, neg, true)
		next.Ticks = pruneEmptyTicks(ticks)
		if p.Tick >= e.TickLower && p.Tick < e.TickUpper {
			liquidity, err := swapmath.AddDelta(p.Liquidity, neg)
			if err != nil {
				return Pool{}, fmt.Errorf("burn on pool %s: %w", p.Address.Hex(), err)
			}
			next.Liquidity = liquidity
		}

	default:
		return Pool{}, fmt.Errorf("%w: %s on %s pool %s", ErrUnexpectedEvent, ev.EventName(), p.Variant, p.Address.Hex())
	}

	return next, nil
}

// updateTick returns a copy of ticks with the liquidity delta folded into
// the boundary at index, materializing the tick if it was not yet
// initialized. Upper boundaries subtract from net liquidity, lower
// boundaries add.
func updateTick(ticks []swapmath.Tick, index int64, amount *big.Int, upper bool) []swapmath.Tick {
	out := make([]swapmath.Tick, len(ticks))
	copy(out, ticks)

	i := sort.Search(len(out), func(i int) bool {
		return out[i].Index >= index
	})

	net := new(big.Int).Set(amount)
	if upper {
		net.Neg(net)
	}

	if i < len(out) && out[i].Index == index {
		out[i].LiquidityNet = new(big.Int).Add(out[i].LiquidityNet, net)
		out[i].LiquidityGross = new(big.Int).Add(out[i].LiquidityGross, amount)
		return out
	}

	tick := swapmath.Tick{
		Index:          index,
		LiquidityNet:   net,
		LiquidityGross: new(big.Int).Set(amount),
	}
	out = append(out, swapmath.Tick{})
	copy(out[i+1:], out[i:])
	out[i] = tick
	return out
}

// pruneEmptyTicks drops ticks whose gross liquidity reached zero.
func pruneEmptyTicks(ticks []swapmath.Tick) []swapmath.Tick {
	out := ticks[:0]
	for _, t := range ticks {
		if t.LiquidityGross.Sign() > 0 {
			out = append(out, t)
		}
	}
	return out
}
