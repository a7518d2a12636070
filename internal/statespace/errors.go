package statespace

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ReorgTooDeepError is returned when a chain reorganization reaches past
// the retained rollback history. The state space can no longer be walked
// back to a common ancestor and must be rebuilt from a fresh scan.
type ReorgTooDeepError struct {
	BlockNumber uint64
	ParentHash  common.Hash
	Retained    int
}

func (e *ReorgTooDeepError) Error() string {
	return fmt.Sprintf(
		"reorg beyond retained history: no ancestor %s found for block %d within %d retained blocks",
		e.ParentHash.Hex(), e.BlockNumber, e.Retained,
	)
}
