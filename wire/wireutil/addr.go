package wireutil

import (
	"math/rand"
	"net"
	"time"

	"github.com/autotunafish/zcash/wire"
)

// ------
//
// Builder.
//
// ------

type NetAddrBuilder struct {
	services uint64
	ip       net.IP
	port     uint16
	r        *rand.Rand
}

func NewNetAddrBuilder(r *rand.Rand) *NetAddrBuilder {
	return &NetAddrBuilder{
		services: RandomServices(r),
		ip:       RandomIP(r),
		port:     RandomPort(r),
		r:        r,
	}
}

func (builder *NetAddrBuilder) WithServices(services uint64) *NetAddrBuilder {
	builder.services = services
	return builder
}

func (builder *NetAddrBuilder) WithIP(ip net.IP) *NetAddrBuilder {
	builder.ip = ip
	return builder
}

func (builder *NetAddrBuilder) WithPort(port uint16) *NetAddrBuilder {
	builder.port = port
	return builder
}

func (builder *NetAddrBuilder) Build() wire.NetAddr {
	ip := make(net.IP, net.IPv6len)
	copy(ip, builder.ip.To16())
	return wire.NetAddr{
		Services: builder.services,
		IP:       ip,
		Port:     builder.port,
	}
}

// ------
//
// Random.
//
// ------

func RandomServices(r *rand.Rand) uint64 {
	switch r.Int() % 3 {
	case 0:
		return 0
	case 1:
		return wire.NodeNetwork
	default:
		return r.Uint64()
	}
}

// RandomIP returns an IPv4-mapped or IPv6 address in its 16-byte form.
func RandomIP(r *rand.Rand) net.IP {
	switch r.Int() % 2 {
	case 0:
		return net.IPv4(byte(r.Int()), byte(r.Int()), byte(r.Int()), byte(r.Int())).To16()
	default:
		ip := make(net.IP, net.IPv6len)
		r.Read(ip)
		return ip
	}
}

func RandomPort(r *rand.Rand) uint16 {
	return uint16(r.Int())
}

// RandomTimestamp returns a time with one second precision that fits in an
// unsigned 32-bit value.
func RandomTimestamp(r *rand.Rand) time.Time {
	return time.Unix(int64(r.Uint32()), 0)
}

func RandomTimestampedNetAddr(r *rand.Rand) wire.TimestampedNetAddr {
	return wire.TimestampedNetAddr{
		Timestamp: RandomTimestamp(r),
		NetAddr:   NewNetAddrBuilder(r).Build(),
	}
}
