package dhcpclient_test

import (
	"testing"

	"github.com/insomniacslk/dhcp/dhcpv4"
	"github.com/netlab-sim/vnet/internal/dhcpclient"
	"github.com/netlab-sim/vnet/internal/wire"
	"github.com/stretchr/testify/assert"
)

// TestParamRequestList_matchesKnownOptionCodes cross-checks this package's
// option-55 payload against an independent DHCPv4 option vocabulary, to
// catch a typo'd option code that would otherwise only surface as a silent
// "server didn't answer that option" failure.
func TestParamRequestList_matchesKnownOptionCodes(t *testing.T) {
	t.Parallel()

	known := map[dhcpv4.OptionCode]struct{}{
		dhcpv4.OptionSubnetMask:         {},
		dhcpv4.OptionRouter:             {},
		dhcpv4.OptionDomainNameServer:   {},
		dhcpv4.OptionDomainName:         {},
		dhcpv4.OptionBroadcastAddress:   {},
		dhcpv4.OptionIPAddressLeaseTime: {},
	}

	for _, code := range dhcpclient.ParamRequestList {
		_, ok := known[dhcpv4.GenericOptionCode(code)]
		assert.Truef(t, ok, "option code %d in ParamRequestList is not a recognized DHCPv4 option", code)
	}
}

func TestOptionCodes_matchWireConstants(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		ours byte
		want dhcpv4.OptionCode
	}{
		{"subnet mask", wire.DHCPOptSubnetMask, dhcpv4.OptionSubnetMask},
		{"router", wire.DHCPOptRouter, dhcpv4.OptionRouter},
		{"dns", wire.DHCPOptDNS, dhcpv4.OptionDomainNameServer},
		{"hostname", wire.DHCPOptHostname, dhcpv4.OptionHostName},
		{"domain name", wire.DHCPOptDomainName, dhcpv4.OptionDomainName},
		{"requested ip", wire.DHCPOptRequestedIP, dhcpv4.OptionRequestedIPAddress},
		{"lease time", wire.DHCPOptLeaseTime, dhcpv4.OptionIPAddressLeaseTime},
		{"message type", wire.DHCPOptMessageType, dhcpv4.OptionDHCPMessageType},
		{"server id", wire.DHCPOptServerID, dhcpv4.OptionServerIdentifier},
		{"param req list", wire.DHCPOptParamReqList, dhcpv4.OptionParameterRequestList},
		{"renewal t1", wire.DHCPOptRenewalT1, dhcpv4.OptionRenewTimeValue},
		{"rebinding t2", wire.DHCPOptRebindingT2, dhcpv4.OptionRebindingTimeValue},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want.Code(), tc.ours, "option code mismatch for %s", tc.name)
		})
	}
}
