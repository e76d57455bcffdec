package nic_test

import (
	"testing"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/nic"
	"github.com/netlab-sim/vnet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFrame(t *testing.T, dst addr.MAC) wire.EthernetFrame {
	t.Helper()

	src := addr.MustParseMAC("02:00:00:00:00:01")
	f, err := wire.NewEthernetFrame(dst, src, wire.EtherTypeIPv4, make([]byte, 46))
	require.NoError(t, err)

	return f
}

func TestNIC_transmitDown(t *testing.T) {
	t.Parallel()

	n := nic.New("eth0", addr.MustParseMAC("02:00:00:00:00:01"), nil)

	err := n.Transmit(testFrame(t, addr.Broadcast))
	assert.ErrorIs(t, err, nic.ErrInterfaceDown)
}

func TestNIC_transmitInvokesCallback(t *testing.T) {
	t.Parallel()

	n := nic.New("eth0", addr.MustParseMAC("02:00:00:00:00:01"), nil)
	n.Up()

	var got []byte
	n.SetOnTransmit(func(data []byte) { got = data })

	err := n.Transmit(testFrame(t, addr.Broadcast))
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Equal(t, uint64(1), n.Counters().TxFrames)
}

func TestNIC_receiveFilter(t *testing.T) {
	t.Parallel()

	mac := addr.MustParseMAC("02:00:00:00:00:02")
	n := nic.New("eth0", mac, nil)
	n.Up()

	var delivered int
	n.SetOnReceive(func(wire.EthernetFrame) { delivered++ })

	// Destined elsewhere, not promiscuous: dropped.
	other := addr.MustParseMAC("02:00:00:00:00:03")
	f := testFrame(t, other)
	data, err := f.Encode()
	require.NoError(t, err)
	n.Receive(data)
	assert.Equal(t, 0, delivered)
	assert.Equal(t, uint64(1), n.Counters().DroppedFrames)

	// Destined to us: delivered.
	f2 := testFrame(t, mac)
	data2, err := f2.Encode()
	require.NoError(t, err)
	n.Receive(data2)
	assert.Equal(t, 1, delivered)

	// Broadcast: delivered.
	f3 := testFrame(t, addr.Broadcast)
	data3, err := f3.Encode()
	require.NoError(t, err)
	n.Receive(data3)
	assert.Equal(t, 2, delivered)

	// Promiscuous: unrelated destination now delivered too.
	n.SetPromiscuous(true)
	n.Receive(data)
	assert.Equal(t, 3, delivered)
}

func TestNIC_receiveWhenDown(t *testing.T) {
	t.Parallel()

	mac := addr.MustParseMAC("02:00:00:00:00:02")
	n := nic.New("eth0", mac, nil)

	var delivered int
	n.SetOnReceive(func(wire.EthernetFrame) { delivered++ })

	f := testFrame(t, mac)
	data, err := f.Encode()
	require.NoError(t, err)

	n.Receive(data)
	assert.Equal(t, 0, delivered)
}

func TestNIC_setMTUBounds(t *testing.T) {
	t.Parallel()

	n := nic.New("eth0", addr.MustParseMAC("02:00:00:00:00:01"), nil)

	assert.ErrorIs(t, n.SetMTU(100), nic.ErrMTUOutOfRange)
	assert.ErrorIs(t, n.SetMTU(100000), nic.ErrMTUOutOfRange)
	assert.NoError(t, n.SetMTU(9000))
	assert.Equal(t, 9000, n.MTU())
}
