package wire

import (
	"fmt"

	"github.com/renproject/id"
)

// InvType identifies the kind of object referenced by an InvVect.
type InvType uint32

// Enumeration of inventory types.
const (
	InvTypeError         = InvType(0)
	InvTypeTx            = InvType(1)
	InvTypeBlock         = InvType(2)
	InvTypeFilteredBlock = InvType(3)
	InvTypeWTx           = InvType(5)
)

func (t InvType) String() string {
	switch t {
	case InvTypeError:
		return "error"
	case InvTypeTx:
		return "tx"
	case InvTypeBlock:
		return "block"
	case InvTypeFilteredBlock:
		return "filteredblock"
	case InvTypeWTx:
		return "wtx"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

const invVectLen = 4 + 32

// InvVect references a single object by type and hash.
type InvVect struct {
	Type InvType
	Hash id.Hash
}

func encodeInventory(inventory []InvVect) ([]byte, error) {
	w := newWriter(MaxCompactSizeLen + len(inventory)*invVectLen)
	w.compactSize(uint64(len(inventory)))
	for _, inv := range inventory {
		w.uint32(uint32(inv.Type))
		w.hash(inv.Hash)
	}
	return w.bytes(), nil
}

func decodeInventory(fn string, data []byte) ([]InvVect, error) {
	r := newReader(fn, data)
	inventory := make([]InvVect, r.count("inventory", invVectLen))
	for i := range inventory {
		inventory[i].Type = InvType(r.uint32())
		inventory[i].Hash = r.hash()
	}
	return inventory, r.finish()
}

// Inv announces objects. The list may be empty.
type Inv struct {
	Inventory []InvVect
}

func (Inv) Command() string { return CmdInv }

func (msg Inv) MarshalBinary() ([]byte, error) {
	return encodeInventory(msg.Inventory)
}

func (msg *Inv) UnmarshalBinary(data []byte) (err error) {
	msg.Inventory, err = decodeInventory("Inv.UnmarshalBinary", data)
	return err
}

func (Inv) isMessage() {}

// GetData requests the objects in its inventory.
type GetData struct {
	Inventory []InvVect
}

func (GetData) Command() string { return CmdGetData }

func (msg GetData) MarshalBinary() ([]byte, error) {
	return encodeInventory(msg.Inventory)
}

func (msg *GetData) UnmarshalBinary(data []byte) (err error) {
	msg.Inventory, err = decodeInventory("GetData.UnmarshalBinary", data)
	return err
}

func (GetData) isMessage() {}

// NotFound answers a GetData for objects that are not available.
type NotFound struct {
	Inventory []InvVect
}

func (NotFound) Command() string { return CmdNotFound }

func (msg NotFound) MarshalBinary() ([]byte, error) {
	return encodeInventory(msg.Inventory)
}

func (msg *NotFound) UnmarshalBinary(data []byte) (err error) {
	msg.Inventory, err = decodeInventory("NotFound.UnmarshalBinary", data)
	return err
}

func (NotFound) isMessage() {}

// LocatorHashes is the body shared by GetHeaders and GetBlocks: a list of
// known block hashes, newest first, and the hash to stop at (zero for as many
// as possible).
type LocatorHashes struct {
	Version uint32
	Hashes  []id.Hash
	Stop    id.Hash
}

func (locator LocatorHashes) marshal() []byte {
	w := newWriter(4 + MaxCompactSizeLen + (len(locator.Hashes)+1)*32)
	w.uint32(locator.Version)
	w.compactSize(uint64(len(locator.Hashes)))
	for _, hash := range locator.Hashes {
		w.hash(hash)
	}
	w.hash(locator.Stop)
	return w.bytes()
}

func (locator *LocatorHashes) unmarshal(fn string, data []byte) error {
	r := newReader(fn, data)
	locator.Version = r.uint32()
	locator.Hashes = make([]id.Hash, r.count("locator hash", 32))
	for i := range locator.Hashes {
		locator.Hashes[i] = r.hash()
	}
	locator.Stop = r.hash()
	return r.finish()
}

// GetHeaders requests the headers following the locator.
type GetHeaders struct {
	LocatorHashes
}

func (GetHeaders) Command() string { return CmdGetHeaders }

func (msg GetHeaders) MarshalBinary() ([]byte, error) {
	return msg.marshal(), nil
}

func (msg *GetHeaders) UnmarshalBinary(data []byte) error {
	return msg.unmarshal("GetHeaders.UnmarshalBinary", data)
}

func (GetHeaders) isMessage() {}

// GetBlocks requests an Inv of the blocks following the locator.
type GetBlocks struct {
	LocatorHashes
}

func (GetBlocks) Command() string { return CmdGetBlocks }

func (msg GetBlocks) MarshalBinary() ([]byte, error) {
	return msg.marshal(), nil
}

func (msg *GetBlocks) UnmarshalBinary(data []byte) error {
	return msg.unmarshal("GetBlocks.UnmarshalBinary", data)
}

func (GetBlocks) isMessage() {}
