package discovery

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SyncError reports a failure confined to one block sub-range of a factory
// scan. The range bounds let callers resume from the exact point of failure
// rather than rescanning the whole window.
type SyncError struct {
	Factory common.Address
	From    uint64
	To      uint64
	Err     error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync factory %s blocks [%d, %d]: %v", e.Factory.Hex(), e.From, e.To, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
