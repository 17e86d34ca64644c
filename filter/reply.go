package filter

import (
	"github.com/autotunafish/zcash/wire"
)

// Reply returns the canonical reply to a message, as a cooperative peer with
// no chain state would send it. The boolean is false for messages that have no
// canonical reply.
func Reply(msg wire.Message) (wire.Message, bool) {
	switch msg := msg.(type) {
	case wire.Ping:
		return wire.Pong{Nonce: msg.Nonce}, true
	case wire.Version:
		return wire.Verack{}, true
	case wire.GetAddr:
		return wire.Addr{}, true
	case wire.GetHeaders:
		return wire.Headers{}, true
	case wire.GetBlocks:
		return wire.Inv{}, true
	case wire.GetData:
		return wire.NotFound{Inventory: msg.Inventory}, true
	case wire.MemPool:
		return wire.Inv{}, true
	default:
		return nil, false
	}
}
