package id

import (
	"sync"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init sets up the process-wide Snowflake node. The server and worker run
// with distinct node IDs so sessions and observations minted on either side
// never collide.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New returns a time-ordered int64 ID. Session and observation IDs sort by
// creation time, which keeps audit listings chronological without a
// separate timestamp sort.
func New() int64 {
	return node.Generate().Int64()
}
