package addr_test

import (
	"testing"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIPv4(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		in      string
		wantErr bool
	}{
		{name: "ok", in: "192.168.1.10"},
		{name: "zero", in: "0.0.0.0"},
		{name: "max", in: "255.255.255.255"},
		{name: "leading zero", in: "192.168.001.1", wantErr: true},
		{name: "out of range", in: "256.0.0.1", wantErr: true},
		{name: "too few octets", in: "1.2.3", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ip, err := addr.ParseIPv4(tc.in)
			if tc.wantErr {
				assert.ErrorIs(t, err, addr.ErrInvalidFormat)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.in, ip.String())
		})
	}
}

func TestIPv4_predicates(t *testing.T) {
	t.Parallel()

	assert.True(t, addr.MustParseIPv4("10.1.2.3").IsPrivate())
	assert.True(t, addr.MustParseIPv4("172.16.0.1").IsPrivate())
	assert.True(t, addr.MustParseIPv4("192.168.0.1").IsPrivate())
	assert.False(t, addr.MustParseIPv4("8.8.8.8").IsPrivate())

	assert.True(t, addr.MustParseIPv4("127.0.0.1").IsLoopback())
	assert.True(t, addr.MustParseIPv4("224.0.0.1").IsMulticast())
	assert.True(t, addr.MustParseIPv4("255.255.255.255").IsLimitedBroadcast())
}

func TestIPv4_subnetMath(t *testing.T) {
	t.Parallel()

	ip := addr.MustParseIPv4("192.168.1.137")
	mask := addr.MustParseSubnetMask("255.255.255.0")

	assert.Equal(t, "192.168.1.0", ip.NetworkOf(mask).String())
	assert.Equal(t, "192.168.1.255", ip.BroadcastOf(mask).String())
	assert.True(t, ip.InSubnet(addr.MustParseIPv4("192.168.1.0"), mask))
	assert.False(t, ip.InSubnet(addr.MustParseIPv4("192.168.2.0"), mask))
}

func TestIPv4_u32RoundTrip(t *testing.T) {
	t.Parallel()

	ip := addr.MustParseIPv4("1.2.3.4")
	assert.Equal(t, ip, addr.FromU32(ip.ToU32()))
}
