package discovery

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"poolSync/internal/chain"
	"poolSync/internal/dex"
	"poolSync/internal/filter"
	"poolSync/internal/pool"
)

var (
	testFactory = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	testToken0  = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testToken1  = common.HexToAddress("0x0000000000000000000000000000000000000002")
	testPair    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func mustDecoder(t *testing.T) *dex.Decoder {
	t.Helper()
	d, err := dex.NewDecoder()
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return d
}

func pairCreatedLog(d *dex.Decoder, pair common.Address, block uint64) types.Log {
	data := make([]byte, 0, 64)
	data = append(data, common.LeftPadBytes(pair.Bytes(), 32)...)
	data = append(data, make([]byte, 32)...) // pair index, unused

	return types.Log{
		Address:     testFactory,
		BlockNumber: block,
		Topics: []common.Hash{
			d.PairCreatedTopic(),
			common.BytesToHash(common.LeftPadBytes(testToken0.Bytes(), 32)),
			common.BytesToHash(common.LeftPadBytes(testToken1.Bytes(), 32)),
		},
		Data: data,
	}
}

// fakeLogSource serves creation logs by block range and can fail the
// first failures calls.
type fakeLogSource struct {
	logs     []types.Log
	failures int
	calls    int
}

func (f *fakeLogSource) FilterLogs(_ context.Context, from, to uint64, _ []common.Address, _ []common.Hash) ([]types.Log, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("rpc unavailable")
	}
	var out []types.Log
	for _, lg := range f.logs {
		if lg.BlockNumber >= from && lg.BlockNumber <= to {
			out = append(out, lg)
		}
	}
	return out, nil
}

// fakeCaller answers batched state calls with fixed reserves and
// 18-decimal tokens. Addresses in failFor get a per-call error.
type fakeCaller struct {
	reserve0 *big.Int
	reserve1 *big.Int
	failFor  map[common.Address]bool
}

func (f *fakeCaller) BatchCallContract(_ context.Context, calls []chain.ContractCall) ([][]byte, []error, error) {
	results := make([][]byte, len(calls))
	errs := make([]error, len(calls))
	for i, call := range calls {
		if f.failFor[call.To] {
			errs[i] = errors.New("execution reverted")
			continue
		}
		switch {
		case bytes.Equal(call.Data, selGetReserves):
			data := make([]byte, 96)
			f.reserve0.FillBytes(data[:32])
			f.reserve1.FillBytes(data[32:64])
			results[i] = data
		case bytes.Equal(call.Data, selDecimals):
			data := make([]byte, 32)
			data[31] = 18
			results[i] = data
		default:
			errs[i] = errors.New("unexpected call")
		}
	}
	return results, errs, nil
}

type memCheckpoints struct {
	saved map[common.Address]Checkpoint
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{saved: make(map[common.Address]Checkpoint)}
}

func (m *memCheckpoints) Load(factory common.Address) (Checkpoint, bool, error) {
	cp, ok := m.saved[factory]
	return cp, ok, nil
}

func (m *memCheckpoints) Save(cp Checkpoint) error {
	m.saved[cp.Factory] = cp
	return nil
}

func testScannerConfig() Config {
	return Config{
		Factory:      testFactory,
		Variant:      pool.ConstantProduct,
		FromBlock:    0,
		ToBlock:      99,
		BatchSize:    50,
		Concurrency:  2,
		ChunkSize:    10,
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
		CallTimeout:  time.Second,
	}
}

func TestScannerDiscoversPairs(t *testing.T) {
	d := mustDecoder(t)
	source := &fakeLogSource{logs: []types.Log{pairCreatedLog(d, testPair, 10)}}
	caller := &fakeCaller{reserve0: big.NewInt(1000), reserve1: big.NewInt(2000)}
	checkpoints := newMemCheckpoints()

	s := NewScanner(testScannerConfig(), source, caller, d, nil, filter.Context{}, checkpoints, nil)

	pools, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("got %d pools, want 1", len(pools))
	}

	p := pools[0]
	if p.Address != testPair || p.Variant != pool.ConstantProduct {
		t.Fatalf("pool = %+v", p)
	}
	if p.Reserve0.Cmp(big.NewInt(1000)) != 0 || p.Reserve1.Cmp(big.NewInt(2000)) != 0 {
		t.Fatalf("reserves = %s/%s", p.Reserve0, p.Reserve1)
	}
	if p.Decimals0 != 18 || p.Decimals1 != 18 {
		t.Fatalf("decimals = %d/%d", p.Decimals0, p.Decimals1)
	}

	cp, ok := checkpoints.saved[testFactory]
	if !ok || cp.LastScannedBlock != 99 {
		t.Fatalf("checkpoint = %+v, ok=%v", cp, ok)
	}
}

func TestScannerResumesFromCheckpoint(t *testing.T) {
	d := mustDecoder(t)
	source := &fakeLogSource{logs: []types.Log{pairCreatedLog(d, testPair, 10)}}
	caller := &fakeCaller{reserve0: big.NewInt(1), reserve1: big.NewInt(1)}
	checkpoints := newMemCheckpoints()
	checkpoints.saved[testFactory] = Checkpoint{Factory: testFactory, LastScannedBlock: 99}

	s := NewScanner(testScannerConfig(), source, caller, d, nil, filter.Context{}, checkpoints, nil)

	pools, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pools) != 0 {
		t.Fatalf("got %d pools, want 0 after full resume", len(pools))
	}
	if source.calls != 0 {
		t.Fatalf("log source called %d times, want 0", source.calls)
	}
}

func TestScannerRetriesTransientFailure(t *testing.T) {
	d := mustDecoder(t)
	source := &fakeLogSource{
		logs:     []types.Log{pairCreatedLog(d, testPair, 10)},
		failures: 1, // first call fails, retry succeeds
	}
	caller := &fakeCaller{reserve0: big.NewInt(1), reserve1: big.NewInt(1)}

	s := NewScanner(testScannerConfig(), source, caller, d, nil, filter.Context{}, newMemCheckpoints(), nil)

	pools, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("got %d pools, want 1", len(pools))
	}
}

func TestScannerRetryExhaustion(t *testing.T) {
	d := mustDecoder(t)
	source := &fakeLogSource{failures: 100}
	caller := &fakeCaller{reserve0: big.NewInt(1), reserve1: big.NewInt(1)}
	checkpoints := newMemCheckpoints()

	s := NewScanner(testScannerConfig(), source, caller, d, nil, filter.Context{}, checkpoints, nil)

	_, err := s.Scan(context.Background())
	var syncErr *SyncError
	if !errors.As(err, &syncErr) {
		t.Fatalf("expected *SyncError, got %v", err)
	}
	if syncErr.Factory != testFactory || syncErr.From != 0 || syncErr.To != 49 {
		t.Fatalf("sync error = %+v", syncErr)
	}
	if _, ok := checkpoints.saved[testFactory]; ok {
		t.Fatal("checkpoint must not advance past a failed range")
	}
}

func TestScannerAppliesFilters(t *testing.T) {
	d := mustDecoder(t)
	source := &fakeLogSource{logs: []types.Log{pairCreatedLog(d, testPair, 10)}}
	caller := &fakeCaller{reserve0: big.NewInt(1), reserve1: big.NewInt(1)}

	filters := filter.Chain{filter.NewBlacklist([]common.Address{testPair})}
	s := NewScanner(testScannerConfig(), source, caller, d, filters, filter.Context{}, newMemCheckpoints(), nil)

	pools, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pools) != 0 {
		t.Fatalf("got %d pools, want 0 after blacklist", len(pools))
	}
}

func TestScannerDeduplicates(t *testing.T) {
	d := mustDecoder(t)
	source := &fakeLogSource{logs: []types.Log{
		pairCreatedLog(d, testPair, 10),
		pairCreatedLog(d, testPair, 60), // same pair surfacing again
	}}
	caller := &fakeCaller{reserve0: big.NewInt(1), reserve1: big.NewInt(1)}

	s := NewScanner(testScannerConfig(), source, caller, d, nil, filter.Context{}, newMemCheckpoints(), nil)

	pools, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("got %d pools, want 1 after dedupe", len(pools))
	}
}

func TestScannerSkipsFailedStateLoad(t *testing.T) {
	d := mustDecoder(t)
	otherPair := common.HexToAddress("0x00000000000000000000000000000000000000ab")
	source := &fakeLogSource{logs: []types.Log{
		pairCreatedLog(d, testPair, 10),
		pairCreatedLog(d, otherPair, 11),
	}}
	caller := &fakeCaller{
		reserve0: big.NewInt(1),
		reserve1: big.NewInt(1),
		failFor:  map[common.Address]bool{otherPair: true},
	}

	s := NewScanner(testScannerConfig(), source, caller, d, nil, filter.Context{}, newMemCheckpoints(), nil)

	pools, err := s.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("got %d pools, want 1 with the broken pool skipped", len(pools))
	}
	if pools[0].Address != testPair {
		t.Fatalf("surviving pool = %s", pools[0].Address.Hex())
	}
}
