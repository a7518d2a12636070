package dex

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	testPool   = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testSender = common.HexToAddress("0x00000000000000000000000000000000000000cc")
	testToken0 = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testToken1 = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func mustDecoder(t *testing.T) *Decoder {
	t.Helper()
	d, err := NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return d
}

func addressTopic(addr common.Address) common.Hash {
	return common.BytesToHash(common.LeftPadBytes(addr.Bytes(), 32))
}

func intTopic(v int64) common.Hash {
	return common.BytesToHash(math.U256Bytes(big.NewInt(v)))
}

func TestDecodeV2Sync(t *testing.T) {
	d := mustDecoder(t)

	data := make([]byte, 64)
	big.NewInt(1000).FillBytes(data[:32])
	big.NewInt(2000).FillBytes(data[32:])

	ev, err := d.DecodeV2PoolLog(types.Log{
		Address: testPool,
		Topics:  []common.Hash{d.v2Pair.Events["Sync"].ID},
		Data:    data,
	})
	if err != nil {
		t.Fatalf("DecodeV2PoolLog: %v", err)
	}

	sync, ok := ev.(V2Sync)
	if !ok {
		t.Fatalf("event type = %T, want V2Sync", ev)
	}
	if sync.Reserve0.Cmp(big.NewInt(1000)) != 0 || sync.Reserve1.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("reserves = %s/%s", sync.Reserve0, sync.Reserve1)
	}
}

func TestDecodeV2Swap(t *testing.T) {
	d := mustDecoder(t)
	event := d.v2Pair.Events["Swap"]

	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(10), big.NewInt(0), big.NewInt(0), big.NewInt(9))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	ev, err := d.DecodeV2PoolLog(types.Log{
		Address: testPool,
		Topics:  []common.Hash{event.ID, addressTopic(testSender), addressTopic(testSender)},
		Data:    data,
	})
	if err != nil {
		t.Fatalf("DecodeV2PoolLog: %v", err)
	}

	swap, ok := ev.(V2Swap)
	if !ok {
		t.Fatalf("event type = %T, want V2Swap", ev)
	}
	if swap.Amount0In.Cmp(big.NewInt(10)) != 0 || swap.Amount1Out.Cmp(big.NewInt(9)) != 0 {
		t.Fatalf("swap = %+v", swap)
	}
	if swap.Sender != testSender {
		t.Fatalf("sender = %s", swap.Sender.Hex())
	}
}

func TestDecodeV2UnknownTopic(t *testing.T) {
	d := mustDecoder(t)

	_, err := d.DecodeV2PoolLog(types.Log{
		Address:     testPool,
		BlockNumber: 42,
		Topics:      []common.Hash{common.HexToHash("0xdead")},
	})

	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent cause, got %v", decodeErr.Err)
	}
	if decodeErr.BlockNumber != 42 || decodeErr.Address != testPool {
		t.Fatalf("decode error coordinates = %+v", decodeErr)
	}
}

func TestDecodeV2MissingTopics(t *testing.T) {
	d := mustDecoder(t)

	_, err := d.DecodeV2PoolLog(types.Log{Address: testPool})
	if !errors.Is(err, ErrMissingTopics) {
		t.Fatalf("expected ErrMissingTopics, got %v", err)
	}
}

func TestDecodeV3Swap(t *testing.T) {
	d := mustDecoder(t)
	event := d.v3Pool.Events["Swap"]

	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	data, err := event.Inputs.NonIndexed().Pack(
		big.NewInt(-500), big.NewInt(1000), sqrtPrice, big.NewInt(777), big.NewInt(-60))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	ev, err := d.DecodeV3PoolLog(types.Log{
		Address: testPool,
		Topics:  []common.Hash{event.ID, addressTopic(testSender), addressTopic(testSender)},
		Data:    data,
	})
	if err != nil {
		t.Fatalf("DecodeV3PoolLog: %v", err)
	}

	swap, ok := ev.(V3Swap)
	if !ok {
		t.Fatalf("event type = %T, want V3Swap", ev)
	}
	if swap.Amount0.Cmp(big.NewInt(-500)) != 0 {
		t.Fatalf("amount0 = %s, want -500", swap.Amount0)
	}
	if swap.Tick != -60 {
		t.Fatalf("tick = %d, want -60", swap.Tick)
	}
	if swap.SqrtPriceX96.Cmp(sqrtPrice) != 0 || swap.Liquidity.Cmp(big.NewInt(777)) != 0 {
		t.Fatalf("swap = %+v", swap)
	}
}

func TestDecodeV3MintNegativeTicks(t *testing.T) {
	d := mustDecoder(t)
	event := d.v3Pool.Events["Mint"]

	data, err := event.Inputs.NonIndexed().Pack(
		testSender, big.NewInt(500), big.NewInt(10), big.NewInt(20))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	ev, err := d.DecodeV3PoolLog(types.Log{
		Address: testPool,
		Topics: []common.Hash{
			event.ID,
			addressTopic(testSender),
			intTopic(-887220),
			intTopic(887220),
		},
		Data: data,
	})
	if err != nil {
		t.Fatalf("DecodeV3PoolLog: %v", err)
	}

	mint, ok := ev.(V3Mint)
	if !ok {
		t.Fatalf("event type = %T, want V3Mint", ev)
	}
	if mint.TickLower != -887220 || mint.TickUpper != 887220 {
		t.Fatalf("ticks = %d/%d", mint.TickLower, mint.TickUpper)
	}
	if mint.Amount.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("amount = %s", mint.Amount)
	}
}

func TestDecodeV3Initialize(t *testing.T) {
	d := mustDecoder(t)
	event := d.v3Pool.Events["Initialize"]

	sqrtPrice := new(big.Int).Lsh(big.NewInt(1), 96)
	data, err := event.Inputs.NonIndexed().Pack(sqrtPrice, big.NewInt(0))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	ev, err := d.DecodeV3PoolLog(types.Log{
		Address: testPool,
		Topics:  []common.Hash{event.ID},
		Data:    data,
	})
	if err != nil {
		t.Fatalf("DecodeV3PoolLog: %v", err)
	}

	init, ok := ev.(V3Initialize)
	if !ok {
		t.Fatalf("event type = %T, want V3Initialize", ev)
	}
	if init.SqrtPriceX96.Cmp(sqrtPrice) != 0 || init.Tick != 0 {
		t.Fatalf("initialize = %+v", init)
	}
}

func TestDecodePairCreated(t *testing.T) {
	d := mustDecoder(t)
	event := d.v2Factory.Events["PairCreated"]

	data, err := event.Inputs.NonIndexed().Pack(testPool, big.NewInt(1))
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	ev, err := d.DecodePairCreated(types.Log{
		Topics: []common.Hash{event.ID, addressTopic(testToken0), addressTopic(testToken1)},
		Data:   data,
	})
	if err != nil {
		t.Fatalf("DecodePairCreated: %v", err)
	}
	if ev.Pair != testPool || ev.Token0 != testToken0 || ev.Token1 != testToken1 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestDecodePoolCreated(t *testing.T) {
	d := mustDecoder(t)
	event := d.v3Factory.Events["PoolCreated"]

	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(60), testPool)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	ev, err := d.DecodePoolCreated(types.Log{
		Topics: []common.Hash{
			event.ID,
			addressTopic(testToken0),
			addressTopic(testToken1),
			intTopic(3000),
		},
		Data: data,
	})
	if err != nil {
		t.Fatalf("DecodePoolCreated: %v", err)
	}
	if ev.Pool != testPool || ev.Fee != 3000 || ev.TickSpacing != 60 {
		t.Fatalf("event = %+v", ev)
	}
}

func TestDecodePoolCreatedWrongShape(t *testing.T) {
	d := mustDecoder(t)

	_, err := d.DecodePoolCreated(types.Log{Topics: []common.Hash{common.HexToHash("0x01")}})
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected *DecodeError, got %v", err)
	}
}
