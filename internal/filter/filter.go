package filter

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"poolSync/internal/pool"
	"poolSync/internal/swapmath"
)

// TokenPricer values a token in the configured base currency. The price is
// per whole token (decimals already applied). The second return reports
// whether a price is known.
type TokenPricer interface {
	PriceOf(token common.Address) (decimal.Decimal, bool)
}

// Context carries the external inputs filters may consult. Filters never
// hold state of their own.
type Context struct {
	Pricer TokenPricer
}

// Filter is a pure, total predicate over a pool's public attributes.
type Filter interface {
	Passes(p pool.Pool, ctx Context) bool
}

// Chain evaluates filters in order as a logical AND. Order affects
// short-circuiting only, never the accepted set.
type Chain []Filter

// Passes reports whether every filter in the chain accepts the pool.
func (c Chain) Passes(p pool.Pool, ctx Context) bool {
	for _, f := range c {
		if !f.Passes(p, ctx) {
			return false
		}
	}
	return true
}

// Blacklist rejects pools whose address or either token is listed.
type Blacklist map[common.Address]struct{}

// NewBlacklist builds a Blacklist from addresses.
func NewBlacklist(addrs []common.Address) Blacklist {
	b := make(Blacklist, len(addrs))
	for _, a := range addrs {
		b[a] = struct{}{}
	}
	return b
}

func (b Blacklist) Passes(p pool.Pool, _ Context) bool {
	if _, ok := b[p.Address]; ok {
		return false
	}
	if _, ok := b[p.Token0]; ok {
		return false
	}
	if _, ok := b[p.Token1]; ok {
		return false
	}
	return true
}

// Whitelist accepts only pools holding at least one listed token.
type Whitelist map[common.Address]struct{}

// NewWhitelist builds a Whitelist from token addresses.
func NewWhitelist(tokens []common.Address) Whitelist {
	w := make(Whitelist, len(tokens))
	for _, t := range tokens {
		w[t] = struct{}{}
	}
	return w
}

func (w Whitelist) Passes(p pool.Pool, _ Context) bool {
	if _, ok := w[p.Token0]; ok {
		return true
	}
	_, ok := w[p.Token1]
	return ok
}

// MinLiquidity requires the pool's combined reserves to be worth at least
// Min in the base currency. Pools holding a token the pricer cannot value
// are rejected: the filter fails closed rather than admitting a pool of
// unknown worth.
type MinLiquidity struct {
	Min decimal.Decimal
}

func (m MinLiquidity) Passes(p pool.Pool, ctx Context) bool {
	if ctx.Pricer == nil {
		return false
	}
	price0, ok := ctx.Pricer.PriceOf(p.Token0)
	if !ok {
		return false
	}
	price1, ok := ctx.Pricer.PriceOf(p.Token1)
	if !ok {
		return false
	}

	reserve0, reserve1, ok := effectiveReserves(p)
	if !ok {
		return false
	}

	value := wholeTokens(reserve0, p.Decimals0).Mul(price0).
		Add(wholeTokens(reserve1, p.Decimals1).Mul(price1))
	return value.GreaterThanOrEqual(m.Min)
}

// effectiveReserves returns real reserves for constant-product pools and
// virtual reserves for concentrated-liquidity pools.
func effectiveReserves(p pool.Pool) (*big.Int, *big.Int, bool) {
	switch p.Variant {
	case pool.ConstantProduct:
		return p.Reserve0, p.Reserve1, true
	case pool.ConcentratedLiquidity:
		r0, r1, err := swapmath.VirtualReservesV3(swapmath.V3State{
			SqrtPriceX96: p.SqrtPriceX96,
			Liquidity:    p.Liquidity,
		})
		if err != nil {
			return nil, nil, false
		}
		return r0, r1, true
	default:
		return nil, nil, false
	}
}

func wholeTokens(raw *big.Int, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 0).Shift(-int32(decimals))
}

// StaticPricer is a fixed token -> price table, typically loaded from
// configuration at startup.
type StaticPricer map[common.Address]decimal.Decimal

func (s StaticPricer) PriceOf(token common.Address) (decimal.Decimal, bool) {
	price, ok := s[token]
	return price, ok
}

// Spec describes one filter in configuration.
type Spec struct {
	Kind   string            `mapstructure:"kind"`
	Params map[string]string `mapstructure:"params"`
}

// ParseSpecs builds the ordered filter chain described by specs.
func ParseSpecs(specs []Spec) (Chain, error) {
	chain := make(Chain, 0, len(specs))
	for _, spec := range specs {
		f, err := parseSpec(spec)
		if err != nil {
			return nil, err
		}
		chain = append(chain, f)
	}
	return chain, nil
}

func parseSpec(spec Spec) (Filter, error) {
	switch spec.Kind {
	case "blacklist":
		addrs, err := parseAddressList(spec.Params["addresses"])
		if err != nil {
			return nil, fmt.Errorf("blacklist filter: %w", err)
		}
		return NewBlacklist(addrs), nil

	case "whitelist":
		tokens, err := parseAddressList(spec.Params["tokens"])
		if err != nil {
			return nil, fmt.Errorf("whitelist filter: %w", err)
		}
		return NewWhitelist(tokens), nil

	case "min-liquidity":
		raw, ok := spec.Params["min"]
		if !ok {
			return nil, fmt.Errorf("min-liquidity filter: min is required")
		}
		min, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("min-liquidity filter: parse min: %w", err)
		}
		return MinLiquidity{Min: min}, nil

	default:
		return nil, fmt.Errorf("unknown filter kind %q", spec.Kind)
	}
}

func parseAddressList(raw string) ([]common.Address, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]common.Address, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !common.IsHexAddress(part) {
			return nil, fmt.Errorf("invalid address %q", part)
		}
		out = append(out, common.HexToAddress(part))
	}
	return out, nil
}
