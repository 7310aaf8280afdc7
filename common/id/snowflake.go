package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID. Only the
// first initialization takes effect; if New or NewString runs before Init,
// node ID 0 is used and a later Init is a no-op.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// current returns the initialized node, initializing node ID 0 on first use.
func current() *snowflake.Node {
	once.Do(func() {
		node, _ = snowflake.NewNode(0)
	})
	return node
}

// New generates a new globally unique int64 ID using the Snowflake algorithm.
// IDs are time-ordered and unique across distributed instances.
func New() int64 {
	return current().Generate().Int64()
}

// NewString generates a new globally unique, time-ordered ID rendered as a
// base32 string. Used for entity IDs that cross process/transport
// boundaries as opaque strings (proposals, spans, traces, context bundles).
func NewString() string {
	return current().Generate().Base32()
}
