package wire

import (
	"fmt"
	"io"
)

// WriteTo writes the wire encoding of the Header to w.
func (header Header) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(header.Bytes())
	return int64(n), err
}

// EncodeMessage returns the complete frame (header and payload) for msg.
// Unknown messages are framed with their raw command bytes.
func EncodeMessage(msg Message, magic Magic) ([]byte, error) {
	payload, err := msg.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encoding %v: %w", msg.Command(), err)
	}
	if len(payload) > MaxMessageLen {
		return nil, messageError("EncodeMessage", ErrPayloadTooLarge, fmt.Sprintf("payload length %v exceeds %v", len(payload), MaxMessageLen))
	}
	header := NewHeader(magic, msg.Command(), payload)
	if unknown, ok := msg.(Unknown); ok {
		header.Command = unknown.Cmd
	}
	return append(header.AppendTo(make([]byte, 0, HeaderLen+len(payload))), payload...), nil
}

// WriteMessage frames msg and writes it to w with a single call to Write.
func WriteMessage(w io.Writer, msg Message, magic Magic) error {
	frame, err := EncodeMessage(msg, magic)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing %v: %w", msg.Command(), err)
	}
	return nil
}

// ReadMessage reads exactly one frame from r and decodes it. See
// ReadMessageLimit.
func ReadMessage(r io.Reader, magic Magic) (Header, Message, error) {
	return ReadMessageLimit(r, magic, MaxMessageLen)
}

// ReadMessageLimit reads exactly one frame from r and decodes it. Errors from
// r are wrapped and returned as is (for example, io.EOF when the stream ends
// before a header, and io.ErrUnexpectedEOF when it ends inside a frame), so
// that callers can distinguish transport failures from malformed input. The
// payload length is checked against limit before any payload bytes are read.
func ReadMessageLimit(r io.Reader, magic Magic, limit int) (Header, Message, error) {
	buf := [HeaderLen]byte{}
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := DecodeHeader(buf[:])
	if err != nil {
		return Header{}, nil, err
	}
	if header.Magic != magic {
		return header, nil, messageError("ReadMessage", ErrHeaderInvalid, fmt.Sprintf("expected magic %v, got %v", magic, header.Magic))
	}
	if limit > MaxMessageLen {
		limit = MaxMessageLen
	}
	if uint64(header.Length) > uint64(limit) {
		return header, nil, messageError("ReadMessage", ErrPayloadTooLarge, fmt.Sprintf("payload length %v exceeds %v", header.Length, limit))
	}
	payload := make([]byte, header.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return header, nil, fmt.Errorf("reading payload: %w", err)
	}
	if err := header.Verify(payload); err != nil {
		return header, nil, err
	}
	msg, err := DecodeMessage(header, payload)
	if err != nil {
		return header, nil, err
	}
	return header, msg, nil
}
