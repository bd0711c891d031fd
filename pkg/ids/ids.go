package ids

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("ids",
	fx.Provide(NewNode),
)

// NewNode returns the snowflake node used to allocate primary keys.
func NewNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
