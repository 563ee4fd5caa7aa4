package ingress

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnwrapNAT64_RewritesEmbeddedIPv4(t *testing.T) {
	_, prefix, err := net.ParseCIDR("64:ff9b::/96")
	assert.NoError(t, err)

	addr := net.ParseIP("64:ff9b::203.0.113.7")
	got := unwrapNAT64(addr, prefix)
	assert.True(t, got.Equal(net.ParseIP("203.0.113.7")), "got %s", got)
}

func TestUnwrapNAT64_LeavesOutsidePrefixUnchanged(t *testing.T) {
	_, prefix, err := net.ParseCIDR("64:ff9b::/96")
	assert.NoError(t, err)

	addr := net.ParseIP("2001:db8::1")
	got := unwrapNAT64(addr, prefix)
	assert.True(t, got.Equal(addr))
}

func TestUnwrapNAT64_NilPrefixPassesThrough(t *testing.T) {
	addr := net.ParseIP("203.0.113.7")
	got := unwrapNAT64(addr, nil)
	assert.True(t, got.Equal(addr))
}

func TestAdmit_MatchesAfterUnwrap(t *testing.T) {
	_, prefix, _ := net.ParseCIDR("64:ff9b::/96")
	upstream := net.ParseIP("203.0.113.7")
	peer := net.ParseIP("64:ff9b::203.0.113.7")
	assert.True(t, admit(peer, prefix, upstream))
}

func TestAdmit_RejectsOtherAddresses(t *testing.T) {
	upstream := net.ParseIP("203.0.113.7")
	peer := net.ParseIP("203.0.113.8")
	assert.False(t, admit(peer, nil, upstream))
}
