package wire

import (
	"fmt"
)

// Tx carries a serialized transaction. The harness never interprets
// transactions, so the payload is kept verbatim.
type Tx struct {
	Raw []byte
}

func (Tx) Command() string { return CmdTx }

func (msg Tx) MarshalBinary() ([]byte, error) {
	return append([]byte{}, msg.Raw...), nil
}

func (msg *Tx) UnmarshalBinary(data []byte) error {
	msg.Raw = append([]byte{}, data...)
	return nil
}

func (Tx) isMessage() {}

// RejectCode classifies the reason for a Reject.
type RejectCode uint8

// Enumeration of reject codes.
const (
	RejectMalformed       = RejectCode(0x01)
	RejectInvalid         = RejectCode(0x10)
	RejectObsolete        = RejectCode(0x11)
	RejectDuplicate       = RejectCode(0x12)
	RejectNonstandard     = RejectCode(0x40)
	RejectDust            = RejectCode(0x41)
	RejectInsufficientFee = RejectCode(0x42)
	RejectCheckpoint      = RejectCode(0x43)
)

func (code RejectCode) String() string {
	switch code {
	case RejectMalformed:
		return "malformed"
	case RejectInvalid:
		return "invalid"
	case RejectObsolete:
		return "obsolete"
	case RejectDuplicate:
		return "duplicate"
	case RejectNonstandard:
		return "nonstandard"
	case RejectDust:
		return "dust"
	case RejectInsufficientFee:
		return "insufficientfee"
	case RejectCheckpoint:
		return "checkpoint"
	default:
		return fmt.Sprintf("unknown(%#x)", uint8(code))
	}
}

// Maximum lengths of the strings in a Reject.
const (
	MaxRejectMessageLen = CommandLen
	MaxRejectReasonLen  = 111
)

// Reject reports that a previously received message was rejected. Data holds
// whatever follows the reason, usually nothing or the 32-byte hash of the
// rejected object.
type Reject struct {
	Message string
	Code    RejectCode
	Reason  string
	Data    []byte
}

func (Reject) Command() string { return CmdReject }

func (msg Reject) MarshalBinary() ([]byte, error) {
	if len(msg.Message) > MaxRejectMessageLen || len(msg.Reason) > MaxRejectReasonLen {
		return nil, messageError("Reject.MarshalBinary", ErrMalformedField, "string too long")
	}
	w := newWriter(2*MaxCompactSizeLen + len(msg.Message) + 1 + len(msg.Reason) + len(msg.Data))
	w.varString(msg.Message)
	w.uint8(uint8(msg.Code))
	w.varString(msg.Reason)
	w.raw(msg.Data)
	return w.bytes(), nil
}

func (msg *Reject) UnmarshalBinary(data []byte) error {
	r := newReader("Reject.UnmarshalBinary", data)
	msg.Message = r.varString("message", MaxRejectMessageLen)
	msg.Code = RejectCode(r.uint8())
	msg.Reason = r.varString("reason", MaxRejectReasonLen)
	msg.Data = r.rest()
	return r.finish()
}

func (Reject) isMessage() {}
