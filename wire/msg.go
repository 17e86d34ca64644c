package wire

import (
	"fmt"
)

// Enumeration of all commands understood by the harness.
const (
	CmdVersion    = "version"
	CmdVerack     = "verack"
	CmdPing       = "ping"
	CmdPong       = "pong"
	CmdGetAddr    = "getaddr"
	CmdAddr       = "addr"
	CmdGetHeaders = "getheaders"
	CmdHeaders    = "headers"
	CmdGetBlocks  = "getblocks"
	CmdBlock      = "block"
	CmdGetData    = "getdata"
	CmdInv        = "inv"
	CmdNotFound   = "notfound"
	CmdMemPool    = "mempool"
	CmdTx         = "tx"
	CmdReject     = "reject"
)

// Commands lists every known command, in a fixed order.
var Commands = []string{
	CmdVersion,
	CmdVerack,
	CmdPing,
	CmdPong,
	CmdGetAddr,
	CmdAddr,
	CmdGetHeaders,
	CmdHeaders,
	CmdGetBlocks,
	CmdBlock,
	CmdGetData,
	CmdInv,
	CmdNotFound,
	CmdMemPool,
	CmdTx,
	CmdReject,
}

// IsKnownCommand returns true if the command has a payload type in this
// package.
func IsKnownCommand(command string) bool {
	for _, known := range Commands {
		if command == known {
			return true
		}
	}
	return false
}

// A Message is one of the payload types defined in this package. The set of
// implementations is closed: Version, Verack, Ping, Pong, GetAddr, Addr,
// GetHeaders, Headers, GetBlocks, Block, GetData, Inv, NotFound, MemPool, Tx,
// Reject and Unknown. Use a type switch to inspect a Message.
type Message interface {
	// Command returns the command name that identifies the payload on the
	// wire.
	Command() string

	// MarshalBinary encodes the payload (without the frame header).
	MarshalBinary() ([]byte, error)

	isMessage()
}

// DecodePayload decodes the payload of a known command. Payloads of unknown
// commands are returned as Unknown.
func DecodePayload(command string, payload []byte) (Message, error) {
	var msg interface {
		Message
		UnmarshalBinary([]byte) error
	}
	switch command {
	case CmdVersion:
		msg = &Version{}
	case CmdVerack:
		msg = &Verack{}
	case CmdPing:
		msg = &Ping{}
	case CmdPong:
		msg = &Pong{}
	case CmdGetAddr:
		msg = &GetAddr{}
	case CmdAddr:
		msg = &Addr{}
	case CmdGetHeaders:
		msg = &GetHeaders{}
	case CmdHeaders:
		msg = &Headers{}
	case CmdGetBlocks:
		msg = &GetBlocks{}
	case CmdBlock:
		msg = &Block{}
	case CmdGetData:
		msg = &GetData{}
	case CmdInv:
		msg = &Inv{}
	case CmdNotFound:
		msg = &NotFound{}
	case CmdMemPool:
		msg = &MemPool{}
	case CmdTx:
		msg = &Tx{}
	case CmdReject:
		msg = &Reject{}
	default:
		unknown := Unknown{Payload: append([]byte{}, payload...)}
		copy(unknown.Cmd[:], command)
		return unknown, nil
	}
	if err := msg.UnmarshalBinary(payload); err != nil {
		return nil, fmt.Errorf("decoding %v: %w", command, err)
	}
	return deref(msg), nil
}

// DecodeMessage decodes the payload of a frame whose header has already been
// validated. Commands that are not printable identifiers are returned as
// Unknown, with the raw command bytes preserved.
func DecodeMessage(header Header, payload []byte) (Message, error) {
	name, ok := header.CommandName()
	if !ok {
		return Unknown{Cmd: header.Command, Payload: append([]byte{}, payload...)}, nil
	}
	return DecodePayload(name, payload)
}

// deref converts the pointer used for decoding back into the value type that
// implements Message, so that callers can type switch on values.
func deref(msg Message) Message {
	switch msg := msg.(type) {
	case *Version:
		return *msg
	case *Verack:
		return *msg
	case *Ping:
		return *msg
	case *Pong:
		return *msg
	case *GetAddr:
		return *msg
	case *Addr:
		return *msg
	case *GetHeaders:
		return *msg
	case *Headers:
		return *msg
	case *GetBlocks:
		return *msg
	case *Block:
		return *msg
	case *GetData:
		return *msg
	case *Inv:
		return *msg
	case *NotFound:
		return *msg
	case *MemPool:
		return *msg
	case *Tx:
		return *msg
	case *Reject:
		return *msg
	default:
		return msg
	}
}

// Verack acknowledges a Version. It has an empty payload.
type Verack struct{}

func (Verack) Command() string                { return CmdVerack }
func (Verack) MarshalBinary() ([]byte, error) { return []byte{}, nil }
func (*Verack) UnmarshalBinary(data []byte) error {
	return newReader("Verack.UnmarshalBinary", data).finish()
}
func (Verack) isMessage() {}

// GetAddr requests known peer addresses. It has an empty payload.
type GetAddr struct{}

func (GetAddr) Command() string                { return CmdGetAddr }
func (GetAddr) MarshalBinary() ([]byte, error) { return []byte{}, nil }
func (*GetAddr) UnmarshalBinary(data []byte) error {
	return newReader("GetAddr.UnmarshalBinary", data).finish()
}
func (GetAddr) isMessage() {}

// MemPool requests the inventory of the mempool. It has an empty payload.
type MemPool struct{}

func (MemPool) Command() string                { return CmdMemPool }
func (MemPool) MarshalBinary() ([]byte, error) { return []byte{}, nil }
func (*MemPool) UnmarshalBinary(data []byte) error {
	return newReader("MemPool.UnmarshalBinary", data).finish()
}
func (MemPool) isMessage() {}

// Unknown is a frame whose command is not understood. The payload is kept
// verbatim.
type Unknown struct {
	Cmd     [CommandLen]byte
	Payload []byte
}

// Command returns the raw command with NUL padding removed. It may not be a
// valid identifier.
func (msg Unknown) Command() string {
	name, _ := Header{Command: msg.Cmd}.CommandName()
	return name
}

func (msg Unknown) MarshalBinary() ([]byte, error) {
	return append([]byte{}, msg.Payload...), nil
}

func (Unknown) isMessage() {}
