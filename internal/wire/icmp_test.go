package wire_test

import (
	"testing"

	"github.com/netlab-sim/vnet/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestICMPPacket_echoRoundTrip(t *testing.T) {
	t.Parallel()

	req := wire.NewEchoRequest(1234, 1, []byte("abcdefgh"))

	data, err := req.Encode()
	require.NoError(t, err)

	got, err := wire.DecodeICMPPacket(data)
	require.NoError(t, err)

	assert.Equal(t, req.Type, got.Type)
	assert.Equal(t, req.Identifier, got.Identifier)
	assert.Equal(t, req.Sequence, got.Sequence)
	assert.Equal(t, req.Data, got.Data)

	reply := wire.NewEchoReply(req)
	assert.Equal(t, req.Identifier, reply.Identifier)
	assert.Equal(t, req.Sequence, reply.Sequence)
	assert.Equal(t, req.Data, reply.Data)
	assert.Equal(t, wire.ICMPTypeEchoReply, reply.Type)
}

func TestICMPPacket_badChecksum(t *testing.T) {
	t.Parallel()

	req := wire.NewEchoRequest(1, 1, []byte("x"))
	data, err := req.Encode()
	require.NoError(t, err)

	data[len(data)-1] ^= 0xFF

	_, err = wire.DecodeICMPPacket(data)
	assert.ErrorIs(t, err, wire.ErrBadChecksum)
}

func TestICMPPacket_timeExceeded(t *testing.T) {
	t.Parallel()

	original := make([]byte, 40)
	for i := range original {
		original[i] = byte(i)
	}

	te := wire.NewTimeExceeded(original)
	assert.Equal(t, wire.ICMPTypeTimeExceeded, te.Type)
	assert.Len(t, te.Data, 28)
	assert.Equal(t, original[:28], te.Data)
}
