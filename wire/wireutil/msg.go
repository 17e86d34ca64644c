package wireutil

import (
	"math/rand"

	"github.com/autotunafish/zcash/wire"
	"github.com/renproject/id"
)

// ------
//
// Builder.
//
// ------

// MessageBuilder builds a random, well-formed Message. Every Message it builds
// can be encoded, and decodes back to itself.
type MessageBuilder struct {
	command string
	r       *rand.Rand
}

func NewMessageBuilder(r *rand.Rand) *MessageBuilder {
	return &MessageBuilder{
		command: RandomOkCommand(r),
		r:       r,
	}
}

func (builder *MessageBuilder) WithCommand(command string) *MessageBuilder {
	builder.command = command
	return builder
}

func (builder *MessageBuilder) Build() wire.Message {
	r := builder.r
	switch builder.command {
	case wire.CmdVersion:
		return RandomVersion(r)
	case wire.CmdVerack:
		return wire.Verack{}
	case wire.CmdPing:
		return wire.Ping{Nonce: RandomNonce(r)}
	case wire.CmdPong:
		return wire.Pong{Nonce: RandomNonce(r)}
	case wire.CmdGetAddr:
		return wire.GetAddr{}
	case wire.CmdAddr:
		addrs := make([]wire.TimestampedNetAddr, r.Intn(8))
		for i := range addrs {
			addrs[i] = RandomTimestampedNetAddr(r)
		}
		return wire.Addr{Addrs: addrs}
	case wire.CmdGetHeaders:
		return wire.GetHeaders{LocatorHashes: RandomLocatorHashes(r)}
	case wire.CmdHeaders:
		headers := make([]wire.BlockHeader, r.Intn(4))
		for i := range headers {
			headers[i] = RandomBlockHeader(r)
		}
		return wire.Headers{Headers: headers}
	case wire.CmdGetBlocks:
		return wire.GetBlocks{LocatorHashes: RandomLocatorHashes(r)}
	case wire.CmdBlock:
		return wire.Block{Header: RandomBlockHeader(r), Transactions: RandomBytes(r, 256)}
	case wire.CmdGetData:
		return wire.GetData{Inventory: RandomInventory(r)}
	case wire.CmdInv:
		return wire.Inv{Inventory: RandomInventory(r)}
	case wire.CmdNotFound:
		return wire.NotFound{Inventory: RandomInventory(r)}
	case wire.CmdMemPool:
		return wire.MemPool{}
	case wire.CmdTx:
		return wire.Tx{Raw: RandomBytes(r, 512)}
	case wire.CmdReject:
		return wire.Reject{
			Message: RandomOkCommand(r),
			Code:    wire.RejectCode(r.Int()),
			Reason:  string(RandomPrintable(r, wire.MaxRejectReasonLen)),
			Data:    RandomBytes(r, 32),
		}
	default:
		unknown := wire.Unknown{Payload: RandomBytes(r, 256)}
		copy(unknown.Cmd[:], builder.command)
		return unknown
	}
}

// ------
//
// Random.
//
// ------

func RandomOkCommand(r *rand.Rand) string {
	return wire.Commands[r.Intn(len(wire.Commands))]
}

// RandomBadCommand returns a printable command that is not known.
func RandomBadCommand(r *rand.Rand) string {
	for {
		command := string(RandomPrintable(r, wire.CommandLen))
		if command != "" && !wire.IsKnownCommand(command) {
			return command
		}
	}
}

func RandomNonce(r *rand.Rand) wire.Nonce {
	nonce := wire.Nonce{}
	r.Read(nonce[:])
	return nonce
}

func RandomHash(r *rand.Rand) id.Hash {
	hash := id.Hash{}
	r.Read(hash[:])
	return hash
}

// RandomBytes returns between 0 and max (exclusive) random bytes.
func RandomBytes(r *rand.Rand, max int) []byte {
	data := make([]byte, r.Intn(max))
	r.Read(data)
	return data
}

// RandomPrintable returns between 0 and max (inclusive) printable ASCII
// bytes.
func RandomPrintable(r *rand.Rand, max int) []byte {
	data := make([]byte, r.Intn(max+1))
	for i := range data {
		data[i] = byte(0x21 + r.Intn(0x7e-0x21+1))
	}
	return data
}

func RandomVersion(r *rand.Rand) wire.Version {
	return wire.Version{
		ProtocolVersion: r.Int31(),
		Services:        RandomServices(r),
		Timestamp:       RandomTimestamp(r),
		Receiver:        NewNetAddrBuilder(r).Build(),
		Sender:          NewNetAddrBuilder(r).Build(),
		Nonce:           RandomNonce(r),
		UserAgent:       string(RandomPrintable(r, 64)),
		StartHeight:     r.Int31(),
		Relay:           r.Int()%2 == 0,
	}
}

func RandomLocatorHashes(r *rand.Rand) wire.LocatorHashes {
	hashes := make([]id.Hash, r.Intn(8))
	for i := range hashes {
		hashes[i] = RandomHash(r)
	}
	return wire.LocatorHashes{
		Version: uint32(wire.ProtocolVersion),
		Hashes:  hashes,
		Stop:    RandomHash(r),
	}
}

func RandomBlockHeader(r *rand.Rand) wire.BlockHeader {
	header := wire.BlockHeader{
		Version:          r.Int31(),
		PrevBlock:        RandomHash(r),
		MerkleRoot:       RandomHash(r),
		FinalSaplingRoot: RandomHash(r),
		Timestamp:        r.Uint32(),
		Bits:             r.Uint32(),
		Solution:         RandomBytes(r, wire.MaxSolutionLen+1),
	}
	r.Read(header.Nonce[:])
	return header
}

func RandomInventory(r *rand.Rand) []wire.InvVect {
	inventory := make([]wire.InvVect, r.Intn(8))
	for i := range inventory {
		inventory[i] = wire.InvVect{
			Type: wire.InvType(r.Intn(4)),
			Hash: RandomHash(r),
		}
	}
	return inventory
}
