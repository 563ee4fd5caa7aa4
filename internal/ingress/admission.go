package ingress

import "net"

// unwrapNAT64 rewrites an IPv6 address that falls within prefix to the
// embedded IPv4 address carried in its last 32 bits. It
// returns addr unchanged when prefix is nil or addr does not fall
// within it.
func unwrapNAT64(addr net.IP, prefix *net.IPNet) net.IP {
	if prefix == nil {
		return addr
	}
	v6 := addr.To16()
	if v6 == nil || addr.To4() != nil {
		return addr
	}
	if !prefix.Contains(v6) {
		return addr
	}
	return net.IPv4(v6[12], v6[13], v6[14], v6[15])
}

// admit reports whether a connection from peer should be accepted: its
// address, after NAT64 unwrapping, must equal the single configured
// upstream source IP.
func admit(peer net.IP, prefix *net.IPNet, upstream net.IP) bool {
	return unwrapNAT64(peer, prefix).Equal(upstream)
}
