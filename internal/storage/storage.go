package storage

import "poolSync/internal/statespace"

// ChangeSink is a destination for pool change sets.
type ChangeSink interface {
	PutChangeSet(cs statespace.ChangeSet) error
}
