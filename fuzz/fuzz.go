// Package fuzz generates adversarial byte buffers to send to a node before the
// handshake: runs of zeroes, random bytes, and frames that are valid in every
// respect but one.
//
// Generators are lazy, so a run of thousands of multi-megabyte payloads never
// holds more than one of them in memory. The batch functions (Zeroes,
// RandomBytes and so on) are conveniences built on the generators.
package fuzz

import (
	"math/rand"

	"github.com/autotunafish/zcash/wire"
	"github.com/autotunafish/zcash/wire/wireutil"
)

// MaxRandomLen bounds the length of random payloads.
const MaxRandomLen = 64 * 1024

// A Generator returns one payload. It must only use r as its source of
// randomness.
type Generator func(r *rand.Rand) []byte

// A Corpus is a named Generator.
type Corpus struct {
	Name     string
	Generate Generator
}

// Corpora returns every corpus, with frames built for the given network.
func Corpora(magic wire.Magic) []Corpus {
	return []Corpus{
		{Name: "zeroes", Generate: Zero},
		{Name: "random bytes", Generate: Random},
		{Name: "metadata compliant", Generate: func(r *rand.Rand) []byte { return MetadataCompliant(r, magic).Bytes() }},
		{Name: "slightly corrupted", Generate: func(r *rand.Rand) []byte { return Corrupted(r, magic, 1+r.Intn(10)) }},
		{Name: "bad checksum", Generate: func(r *rand.Rand) []byte { return WithBadChecksum(r, magic) }},
		{Name: "length mismatch", Generate: func(r *rand.Rand) []byte { return WithLengthMismatch(r, magic) }},
	}
}

// A Frame is a header and the payload that follows it. The header need not
// describe the payload.
type Frame struct {
	Header  wire.Header
	Payload []byte
}

// Bytes returns the header followed by the payload.
func (frame Frame) Bytes() []byte {
	return append(frame.Header.AppendTo(make([]byte, 0, wire.HeaderLen+len(frame.Payload))), frame.Payload...)
}

// Zero returns between 1 and 2*wire.MaxMessageLen (exclusive) zero bytes.
func Zero(r *rand.Rand) []byte {
	return make([]byte, 1+r.Intn(2*wire.MaxMessageLen-1))
}

// Random returns between 1 and MaxRandomLen (exclusive) random bytes.
func Random(r *rand.Rand) []byte {
	data := make([]byte, 1+r.Intn(MaxRandomLen-1))
	r.Read(data)
	return data
}

// MetadataCompliant returns a frame with a correct header (magic, known
// command, length and checksum) and a random payload.
func MetadataCompliant(r *rand.Rand, magic wire.Magic) Frame {
	payload := Random(r)
	return Frame{
		Header:  wire.NewHeader(magic, wireutil.RandomOkCommand(r), payload),
		Payload: payload,
	}
}

// Corrupted returns a valid frame for a random message, with pct percent of
// its payload bytes (at least one, if the payload is not empty) replaced by
// random bytes. The header is left untouched.
func Corrupted(r *rand.Rand, magic wire.Magic, pct int) []byte {
	frame := valid(r, magic)
	payload := frame[wire.HeaderLen:]
	if len(payload) == 0 {
		return frame
	}
	n := len(payload) * pct / 100
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		payload[r.Intn(len(payload))] = byte(r.Int())
	}
	return frame
}

// WithBadChecksum returns a valid frame for a random message, with a checksum
// that does not match its payload.
func WithBadChecksum(r *rand.Rand, magic wire.Magic) []byte {
	frame := valid(r, magic)
	frame[wire.HeaderLen-wire.ChecksumLen+r.Intn(wire.ChecksumLen)] ^= byte(1 + r.Intn(255))
	return frame
}

// WithLengthMismatch returns a valid frame for a random message, with a
// header length that differs from the length of its payload.
func WithLengthMismatch(r *rand.Rand, magic wire.Magic) []byte {
	frame := valid(r, magic)
	header, err := wire.DecodeHeader(frame)
	if err != nil {
		panic(err)
	}
	for {
		length := uint32(r.Intn(wire.MaxMessageLen + 1))
		if length != header.Length {
			header.Length = length
			break
		}
	}
	return append(header.Bytes(), frame[wire.HeaderLen:]...)
}

// valid returns the frame of a random, well-formed message.
func valid(r *rand.Rand, magic wire.Magic) []byte {
	frame, err := wire.EncodeMessage(wireutil.NewMessageBuilder(r).Build(), magic)
	if err != nil {
		panic(err)
	}
	return frame
}

// Zeroes returns n buffers of zeroes. See Zero.
func Zeroes(r *rand.Rand, n int) [][]byte {
	return batch(r, n, Zero)
}

// RandomBytes returns n buffers of random bytes. See Random.
func RandomBytes(r *rand.Rand, n int) [][]byte {
	return batch(r, n, Random)
}

// MetadataCompliantRandomBytes returns n metadata compliant frames. See
// MetadataCompliant.
func MetadataCompliantRandomBytes(r *rand.Rand, n int, magic wire.Magic) []Frame {
	frames := make([]Frame, n)
	for i := range frames {
		frames[i] = MetadataCompliant(r, magic)
	}
	return frames
}

// SlightlyCorrupted returns n corrupted frames. See Corrupted.
func SlightlyCorrupted(r *rand.Rand, n int, pct int, magic wire.Magic) [][]byte {
	return batch(r, n, func(r *rand.Rand) []byte { return Corrupted(r, magic, pct) })
}

// BadChecksum returns n frames with bad checksums. See WithBadChecksum.
func BadChecksum(r *rand.Rand, n int, magic wire.Magic) [][]byte {
	return batch(r, n, func(r *rand.Rand) []byte { return WithBadChecksum(r, magic) })
}

// LengthMismatch returns n frames with mismatched lengths. See
// WithLengthMismatch.
func LengthMismatch(r *rand.Rand, n int, magic wire.Magic) [][]byte {
	return batch(r, n, func(r *rand.Rand) []byte { return WithLengthMismatch(r, magic) })
}

func batch(r *rand.Rand, n int, gen Generator) [][]byte {
	payloads := make([][]byte, n)
	for i := range payloads {
		payloads[i] = gen(r)
	}
	return payloads
}
