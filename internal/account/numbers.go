package account

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
)

// NumberGenerator hands out externally visible account numbers.
type NumberGenerator interface {
	Next() string
}

// SnowflakeNumbers generates time-ordered numeric account numbers that are
// unique per node without a round trip to the store.
type SnowflakeNumbers struct {
	node *snowflake.Node
}

func NewSnowflakeNumbers(nodeID int64) (*SnowflakeNumbers, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return &SnowflakeNumbers{node: node}, nil
}

func (g *SnowflakeNumbers) Next() string {
	return g.node.Generate().String()
}
