package wire_test

import (
	"testing"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPDatagram_roundTrip(t *testing.T) {
	t.Parallel()

	src := addr.MustParseIPv4("10.0.0.1")
	dst := addr.MustParseIPv4("255.255.255.255")

	d := wire.NewUDPDatagram(68, 67, []byte("payload"))

	data, err := d.Encode(src, dst)
	require.NoError(t, err)

	got, err := wire.DecodeUDPDatagram(data)
	require.NoError(t, err)

	assert.Equal(t, d.SrcPort, got.SrcPort)
	assert.Equal(t, d.DstPort, got.DstPort)
	assert.Equal(t, d.Payload, got.Payload)
}

func TestUDPDatagram_truncated(t *testing.T) {
	t.Parallel()

	_, err := wire.DecodeUDPDatagram([]byte{0, 1, 2})
	assert.ErrorIs(t, err, wire.ErrTruncated)
}
