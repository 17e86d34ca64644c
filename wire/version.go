package wire

import (
	"crypto/rand"
	"encoding/hex"
	"net"
	"time"
)

// ProtocolVersion is the protocol version advertised by the harness.
const ProtocolVersion = int32(170100)

// MaxUserAgentLen is the maximum length of the user agent in a Version.
const MaxUserAgentLen = 256

// DefaultUserAgent is advertised by NewVersion.
const DefaultUserAgent = "/zcash-harness:0.1.0/"

// A Nonce is an opaque 8-byte value. Nonces are compared by their raw bytes;
// the zero Nonce is valid and distinct from every other Nonce.
type Nonce [8]byte

// NewNonce returns a random Nonce.
func NewNonce() Nonce {
	nonce := Nonce{}
	if _, err := rand.Read(nonce[:]); err != nil {
		panic(err)
	}
	return nonce
}

func (nonce Nonce) String() string {
	return hex.EncodeToString(nonce[:])
}

// Version is the first message sent on every connection. The remote peer must
// reply with its own Version followed by a Verack before any other traffic is
// meaningful.
type Version struct {
	ProtocolVersion int32
	Services        uint64
	Timestamp       time.Time
	Receiver        NetAddr
	Sender          NetAddr
	Nonce           Nonce
	UserAgent       string
	StartHeight     int32
	Relay           bool
}

// NewVersion returns a Version addressed to receiver from sender, with a fresh
// nonce and defaults for the remaining fields.
func NewVersion(receiver, sender net.Addr) Version {
	return Version{
		ProtocolVersion: ProtocolVersion,
		Services:        NodeNetwork,
		Timestamp:       time.Unix(time.Now().Unix(), 0),
		Receiver:        NewNetAddr(receiver, NodeNetwork),
		Sender:          NewNetAddr(sender, NodeNetwork),
		Nonce:           NewNonce(),
		UserAgent:       DefaultUserAgent,
		StartHeight:     0,
		Relay:           true,
	}
}

func (Version) Command() string { return CmdVersion }

func (msg Version) MarshalBinary() ([]byte, error) {
	if len(msg.UserAgent) > MaxUserAgentLen {
		return nil, messageError("Version.MarshalBinary", ErrMalformedField, "user agent too long")
	}
	w := newWriter(4 + 8 + 8 + 2*netAddrLen + 8 + MaxCompactSizeLen + len(msg.UserAgent) + 4 + 1)
	w.int32(msg.ProtocolVersion)
	w.uint64(msg.Services)
	w.int64(msg.Timestamp.Unix())
	msg.Receiver.encode(w)
	msg.Sender.encode(w)
	w.raw(msg.Nonce[:])
	w.varString(msg.UserAgent)
	w.int32(msg.StartHeight)
	w.bool(msg.Relay)
	return w.bytes(), nil
}

// UnmarshalBinary decodes a Version. The trailing relay flag is optional, as
// it was introduced by a later protocol version; when absent it defaults to
// true.
func (msg *Version) UnmarshalBinary(data []byte) error {
	r := newReader("Version.UnmarshalBinary", data)
	msg.ProtocolVersion = r.int32()
	msg.Services = r.uint64()
	msg.Timestamp = time.Unix(r.int64(), 0)
	msg.Receiver.decode(r)
	msg.Sender.decode(r)
	r.array(msg.Nonce[:])
	msg.UserAgent = r.varString("user agent", MaxUserAgentLen)
	msg.StartHeight = r.int32()
	msg.Relay = true
	if r.err == nil && r.remaining() > 0 {
		msg.Relay = r.bool()
	}
	return r.finish()
}

func (Version) isMessage() {}

// Ping requests a Pong carrying the same Nonce.
type Ping struct {
	Nonce Nonce
}

func (Ping) Command() string { return CmdPing }

func (msg Ping) MarshalBinary() ([]byte, error) {
	return append([]byte{}, msg.Nonce[:]...), nil
}

func (msg *Ping) UnmarshalBinary(data []byte) error {
	r := newReader("Ping.UnmarshalBinary", data)
	r.array(msg.Nonce[:])
	return r.finish()
}

func (Ping) isMessage() {}

// Pong answers a Ping. Its Nonce must match the Ping being answered.
type Pong struct {
	Nonce Nonce
}

func (Pong) Command() string { return CmdPong }

func (msg Pong) MarshalBinary() ([]byte, error) {
	return append([]byte{}, msg.Nonce[:]...), nil
}

func (msg *Pong) UnmarshalBinary(data []byte) error {
	r := newReader("Pong.UnmarshalBinary", data)
	r.array(msg.Nonce[:])
	return r.finish()
}

func (Pong) isMessage() {}
