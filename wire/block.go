package wire

import (
	"github.com/renproject/id"
)

// MaxSolutionLen is the length of an Equihash (200, 9) solution, the largest
// solution used by any zcash network.
const MaxSolutionLen = 1344

// Encoded size of a BlockHeader with an empty solution.
const blockHeaderFixedLen = 4 + 3*32 + 4 + 4 + 32

// BlockHeader defines information about a block. It is used by Headers and
// Block.
type BlockHeader struct {
	Version          int32
	PrevBlock        id.Hash
	MerkleRoot       id.Hash
	FinalSaplingRoot id.Hash
	Timestamp        uint32
	Bits             uint32
	Nonce            [32]byte
	Solution         []byte
}

func (header BlockHeader) encode(w *writer) {
	w.int32(header.Version)
	w.hash(header.PrevBlock)
	w.hash(header.MerkleRoot)
	w.hash(header.FinalSaplingRoot)
	w.uint32(header.Timestamp)
	w.uint32(header.Bits)
	w.raw(header.Nonce[:])
	w.varBytes(header.Solution)
}

func (header *BlockHeader) decode(r *reader) {
	header.Version = r.int32()
	header.PrevBlock = r.hash()
	header.MerkleRoot = r.hash()
	header.FinalSaplingRoot = r.hash()
	header.Timestamp = r.uint32()
	header.Bits = r.uint32()
	r.array(header.Nonce[:])
	header.Solution = r.varBytes("solution", MaxSolutionLen)
}

// Headers answers a GetHeaders. The list may be empty.
type Headers struct {
	Headers []BlockHeader
}

func (Headers) Command() string { return CmdHeaders }

// MarshalBinary encodes each header followed by a zero transaction count.
func (msg Headers) MarshalBinary() ([]byte, error) {
	size := MaxCompactSizeLen
	for _, header := range msg.Headers {
		size += blockHeaderFixedLen + MaxCompactSizeLen + len(header.Solution) + 1
	}
	w := newWriter(size)
	w.compactSize(uint64(len(msg.Headers)))
	for _, header := range msg.Headers {
		if len(header.Solution) > MaxSolutionLen {
			return nil, messageError("Headers.MarshalBinary", ErrMalformedField, "solution too long")
		}
		header.encode(w)
		w.compactSize(0)
	}
	return w.bytes(), nil
}

// UnmarshalBinary decodes a Headers. Every header must be followed by a zero
// transaction count.
func (msg *Headers) UnmarshalBinary(data []byte) error {
	r := newReader("Headers.UnmarshalBinary", data)
	n := r.count("header", blockHeaderFixedLen+2)
	msg.Headers = make([]BlockHeader, n)
	for i := range msg.Headers {
		msg.Headers[i].decode(r)
		if txs := r.compactSize(); txs != 0 {
			r.fail(ErrMalformedField, "header %v has transaction count %v", i, txs)
		}
	}
	return r.finish()
}

func (Headers) isMessage() {}

// Block carries a full block. Only the header is interpreted; the transaction
// count and transactions are kept verbatim.
type Block struct {
	Header       BlockHeader
	Transactions []byte
}

func (Block) Command() string { return CmdBlock }

func (msg Block) MarshalBinary() ([]byte, error) {
	if len(msg.Header.Solution) > MaxSolutionLen {
		return nil, messageError("Block.MarshalBinary", ErrMalformedField, "solution too long")
	}
	w := newWriter(blockHeaderFixedLen + MaxCompactSizeLen + len(msg.Header.Solution) + len(msg.Transactions))
	msg.Header.encode(w)
	w.raw(msg.Transactions)
	return w.bytes(), nil
}

func (msg *Block) UnmarshalBinary(data []byte) error {
	r := newReader("Block.UnmarshalBinary", data)
	msg.Header.decode(r)
	msg.Transactions = r.rest()
	return r.finish()
}

func (Block) isMessage() {}
