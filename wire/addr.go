package wire

import (
	"fmt"
	"math"
	"net"
	"time"
)

// Services bitmask values.
const (
	NodeNetwork = uint64(1)
)

// Encoded sizes of network addresses. The port is big-endian, unlike every
// other integer on the wire.
const (
	netAddrLen            = 8 + 16 + 2
	timestampedNetAddrLen = 4 + netAddrLen
)

// NetAddr is a network address without a timestamp, as used by Version. The
// IP always decodes in its 16 byte form, and a nil IP encodes as the
// unspecified address.
type NetAddr struct {
	Services uint64
	IP       net.IP
	Port     uint16
}

// NewNetAddr returns a NetAddr for a TCP address. Other address types yield
// the unspecified address.
func NewNetAddr(addr net.Addr, services uint64) NetAddr {
	na := NetAddr{Services: services, IP: net.IPv6unspecified}
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		na.IP = tcpAddr.IP.To16()
		na.Port = uint16(tcpAddr.Port)
	}
	return na
}

// TCPAddr returns the address as a *net.TCPAddr.
func (na NetAddr) TCPAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: na.IP, Port: int(na.Port)}
}

func (na NetAddr) String() string {
	return fmt.Sprintf("%v (services=%#x)", na.TCPAddr(), na.Services)
}

func (na NetAddr) encode(w *writer) {
	var ip [16]byte
	if na.IP != nil {
		copy(ip[:], na.IP.To16())
	}
	w.uint64(na.Services)
	w.raw(ip[:])
	w.uint16BE(na.Port)
}

func (na *NetAddr) decode(r *reader) {
	na.Services = r.uint64()
	ip := make(net.IP, 16)
	r.array(ip)
	na.IP = ip
	na.Port = r.uint16BE()
}

// TimestampedNetAddr is a network address annotated with the last time it was
// seen, as used by Addr. The timestamp has one second precision and is encoded
// as an unsigned 32-bit value.
type TimestampedNetAddr struct {
	Timestamp time.Time
	NetAddr
}

// validTimestamp reports whether t survives the 32-bit encoding unchanged.
func validTimestamp(t time.Time) bool {
	return t.Unix() >= 0 && t.Unix() <= math.MaxUint32 && t.Nanosecond() == 0
}

func (na TimestampedNetAddr) encode(w *writer) {
	w.uint32(uint32(na.Timestamp.Unix()))
	na.NetAddr.encode(w)
}

func (na *TimestampedNetAddr) decode(r *reader) {
	na.Timestamp = time.Unix(int64(r.uint32()), 0)
	na.NetAddr.decode(r)
}

// Addr announces known peer addresses. The list may be empty.
type Addr struct {
	Addrs []TimestampedNetAddr
}

func (Addr) Command() string { return CmdAddr }

// MarshalBinary fails with ErrMalformedField if a timestamp is before the
// epoch, does not fit in 32 bits, or has a fractional second.
func (msg Addr) MarshalBinary() ([]byte, error) {
	for i, addr := range msg.Addrs {
		if !validTimestamp(addr.Timestamp) {
			return nil, messageError("Addr.MarshalBinary", ErrMalformedField, fmt.Sprintf("address %v has timestamp %v", i, addr.Timestamp))
		}
	}
	w := newWriter(MaxCompactSizeLen + len(msg.Addrs)*timestampedNetAddrLen)
	w.compactSize(uint64(len(msg.Addrs)))
	for _, addr := range msg.Addrs {
		addr.encode(w)
	}
	return w.bytes(), nil
}

func (msg *Addr) UnmarshalBinary(data []byte) error {
	r := newReader("Addr.UnmarshalBinary", data)
	n := r.count("address", timestampedNetAddrLen)
	msg.Addrs = make([]TimestampedNetAddr, n)
	for i := range msg.Addrs {
		msg.Addrs[i].decode(r)
	}
	return r.finish()
}

func (Addr) isMessage() {}
