package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNet(cidr string, flags net.Flags) Net {
	ip, ipNet, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	ipNet.IP = ip
	return Net{IPNet: *ipNet, Interface: net.Interface{Name: "test0", Flags: flags}}
}

func TestNet_BroadcastIp(t *testing.T) {
	n := testNet("192.168.10.37/24", net.FlagUp|net.FlagBroadcast)
	ip, err := n.BroadcastIp()
	require.Nil(t, err)
	assert.Equal(t, "192.168.10.255", ip.String())

	n = testNet("10.1.2.3/12", net.FlagUp|net.FlagBroadcast)
	ip, err = n.BroadcastIp()
	require.Nil(t, err)
	assert.Equal(t, "10.15.255.255", ip.String())
}

func TestNet_BroadcastIp_IPv6(t *testing.T) {
	n := testNet("fe80::1/64", net.FlagUp)
	_, err := n.BroadcastIp()
	assert.NotNil(t, err)
}

func TestFirstBroadcast(t *testing.T) {
	loopback := testNet("127.0.0.1/8", net.FlagUp|net.FlagLoopback)
	down := testNet("10.0.0.2/24", net.FlagBroadcast)
	lan := testNet("172.16.4.9/16", net.FlagUp|net.FlagBroadcast)
	n, err := FirstBroadcast([]Net{loopback, down, lan})
	require.Nil(t, err)
	assert.Equal(t, "172.16.4.9", n.IP.String())

	_, err = FirstBroadcast([]Net{loopback, down})
	assert.ErrorIs(t, err, ErrNoBroadcastNetwork)
}

func TestInterfaces(t *testing.T) {
	present, err := Interfaces()
	assert.Nil(t, err)
	for _, n := range present {
		assert.NotNil(t, n.IP.To4())
	}
}
