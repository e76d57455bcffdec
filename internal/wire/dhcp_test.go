package wire_test

import (
	"testing"
	"time"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDHCPPacket_roundTrip(t *testing.T) {
	t.Parallel()

	mac := addr.MustParseMAC("02:00:00:00:00:01")
	p := wire.DHCPPacket{
		Op:     wire.DHCPOpRequest,
		Xid:    0xDEADBEEF,
		Flags:  wire.BroadcastFlag,
		ChAddr: mac,
	}
	p = p.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPDiscover)})
	p = p.WithOption(wire.DHCPOptParamReqList, []byte{1, 3, 6, 15, 28, 51})
	p = p.WithOption(wire.DHCPOptRequestedIP, wire.PutIPv4(addr.MustParseIPv4("192.168.1.50")))

	data, err := p.Encode()
	require.NoError(t, err)

	got, err := wire.DecodeDHCPPacket(data)
	require.NoError(t, err)

	assert.Equal(t, p.Xid, got.Xid)
	assert.True(t, got.IsBroadcast())
	assert.Equal(t, p.ChAddr, got.ChAddr)

	typ, ok := got.MessageType()
	require.True(t, ok)
	assert.Equal(t, wire.DHCPDiscover, typ)
	assert.Equal(t, "DHCPDISCOVER", typ.String())

	reqIP, ok := got.OptionIPv4(wire.DHCPOptRequestedIP)
	require.True(t, ok)
	assert.Equal(t, "192.168.1.50", reqIP.String())
}

func TestDHCPPacket_optionHelpers(t *testing.T) {
	t.Parallel()

	p := wire.DHCPPacket{}
	p = p.WithOption(wire.DHCPOptMessageType, []byte{byte(wire.DHCPOffer)})
	p = p.WithOption(wire.DHCPOptLeaseTime, wire.PutU32(86400))
	p = p.WithOption(wire.DHCPOptDNS, wire.PutIPv4List([]addr.IPv4{
		addr.MustParseIPv4("8.8.8.8"),
		addr.MustParseIPv4("1.1.1.1"),
	}))

	lease, ok := p.OptionDuration(wire.DHCPOptLeaseTime)
	require.True(t, ok)
	assert.Equal(t, 86400*time.Second, lease)

	dns := p.OptionIPv4List(wire.DHCPOptDNS)
	require.Len(t, dns, 2)
	assert.Equal(t, "8.8.8.8", dns[0].String())
	assert.Equal(t, "1.1.1.1", dns[1].String())
}

func TestDecodeDHCPPacket_badMagic(t *testing.T) {
	t.Parallel()

	data := make([]byte, 241)
	_, err := wire.DecodeDHCPPacket(data)
	assert.ErrorIs(t, err, wire.ErrBadMagic)
}

func TestDecodeDHCPPacket_truncated(t *testing.T) {
	t.Parallel()

	_, err := wire.DecodeDHCPPacket(make([]byte, 50))
	assert.ErrorIs(t, err, wire.ErrTruncated)
}
