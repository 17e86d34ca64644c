// Package wire implements the zcash peer-to-peer wire format: the fixed
// 24-byte frame header, the compact-size primitives, every payload type that
// the harness needs to understand, and the Message union that ties them
// together.
//
// Decoding is total. DecodeHeader accepts any 24 bytes, and payload decoding
// returns typed errors (see ErrTruncatedInput, ErrTrailingBytes and
// ErrMalformedField) instead of panicking, no matter how hostile the input is.
// Validity checks that depend on context (network magic, frame size,
// checksum) are done by ReadMessage.
package wire

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Sizes of the frame header and its fields.
const (
	MagicLen    = 4
	CommandLen  = 12
	ChecksumLen = 4
	HeaderLen   = MagicLen + CommandLen + 4 + ChecksumLen

	// MaxMessageLen is the hard upper bound on the payload length of a single
	// frame. Lengths above this are rejected before any payload bytes are
	// read.
	MaxMessageLen = 2 * 1024 * 1024
)

// Magic identifies the network that a frame belongs to.
type Magic [MagicLen]byte

// Network magic values.
var (
	MainnetMagic = Magic{0x24, 0xe9, 0x27, 0x64}
	TestnetMagic = Magic{0xfa, 0x1a, 0xf9, 0xbf}
	RegtestMagic = Magic{0xaa, 0xe8, 0x3f, 0x5f}
)

func (magic Magic) String() string {
	return fmt.Sprintf("%x", magic[:])
}

// Checksum is the first four bytes of the double SHA-256 digest of a
// payload.
type Checksum [ChecksumLen]byte

// NewChecksum computes the Checksum of a payload.
func NewChecksum(payload []byte) Checksum {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	checksum := Checksum{}
	copy(checksum[:], second[:ChecksumLen])
	return checksum
}

// A Header is the fixed-size prefix of every frame. All fields are stored
// exactly as they appear on the wire, so any 24 bytes can be represented.
type Header struct {
	Magic    Magic
	Command  [CommandLen]byte
	Length   uint32
	Checksum Checksum
}

// NewHeader returns the Header for a payload sent with the given command. The
// command is truncated to CommandLen bytes and NUL-padded.
func NewHeader(magic Magic, command string, payload []byte) Header {
	header := Header{
		Magic:    magic,
		Length:   uint32(len(payload)),
		Checksum: NewChecksum(payload),
	}
	copy(header.Command[:], command)
	return header
}

// EncodeHeader returns the 24-byte encoding of the header for a payload.
func EncodeHeader(magic Magic, command string, payload []byte) []byte {
	return NewHeader(magic, command, payload).Bytes()
}

// DecodeHeader reads a Header from the first HeaderLen bytes of data. It only
// fails when fewer than HeaderLen bytes are available.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderLen {
		return Header{}, messageError("DecodeHeader", ErrTruncatedInput, fmt.Sprintf("need %v bytes, got %v", HeaderLen, len(data)))
	}
	header := Header{}
	copy(header.Magic[:], data[0:4])
	copy(header.Command[:], data[4:16])
	header.Length = binary.LittleEndian.Uint32(data[16:20])
	copy(header.Checksum[:], data[20:24])
	return header, nil
}

// Bytes returns the wire encoding of the Header.
func (header Header) Bytes() []byte {
	return header.AppendTo(make([]byte, 0, HeaderLen))
}

// AppendTo appends the wire encoding of the Header to buf.
func (header Header) AppendTo(buf []byte) []byte {
	buf = append(buf, header.Magic[:]...)
	buf = append(buf, header.Command[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, header.Length)
	return append(buf, header.Checksum[:]...)
}

// CommandName returns the command with its NUL padding removed. The boolean
// is false when the command is not a printable ASCII identifier followed only
// by NUL bytes. Such headers can still be framed, but they are never
// dispatched to a known payload type.
func (header Header) CommandName() (string, bool) {
	end := bytes.IndexByte(header.Command[:], 0)
	if end < 0 {
		end = CommandLen
	}
	for _, b := range header.Command[end:] {
		if b != 0 {
			return string(header.Command[:]), false
		}
	}
	if end == 0 {
		return "", false
	}
	for _, b := range header.Command[:end] {
		if b < 0x21 || b > 0x7e {
			return string(header.Command[:end]), false
		}
	}
	return string(header.Command[:end]), true
}

// Verify returns nil if the payload matches the length and checksum
// advertised by the Header.
func (header Header) Verify(payload []byte) error {
	if int(header.Length) != len(payload) {
		return messageError("Header.Verify", ErrMalformedField, fmt.Sprintf("header length %v does not match payload length %v", header.Length, len(payload)))
	}
	if checksum := NewChecksum(payload); checksum != header.Checksum {
		return messageError("Header.Verify", ErrChecksumMismatch, fmt.Sprintf("expected %x, got %x", header.Checksum[:], checksum[:]))
	}
	return nil
}

func (header Header) String() string {
	name, _ := header.CommandName()
	return fmt.Sprintf("header(magic=%v, command=%q, length=%v, checksum=%x)", header.Magic, name, header.Length, header.Checksum[:])
}
