package device_test

import (
	"testing"
	"time"

	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/arpsvc"
	"github.com/netlab-sim/vnet/internal/device"
	"github.com/netlab-sim/vnet/internal/dhcpclient"
	"github.com/netlab-sim/vnet/internal/dhcpserver"
	"github.com/netlab-sim/vnet/internal/nic"
	"github.com/netlab-sim/vnet/internal/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_forwardsBetweenSubnets(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}

	lanMask := addr.MustParseSubnetMask("255.255.255.0")
	lanIP := addr.MustParseIPv4("192.168.1.1")
	wanMask := addr.MustParseSubnetMask("255.255.255.0")
	wanIP := addr.MustParseIPv4("10.0.0.1")

	lanMAC := addr.MustParseMAC("02:00:00:00:00:01")
	wanMAC := addr.MustParseMAC("02:00:00:00:00:02")

	lanNIC := nic.New("lan0", lanMAC, nil)
	wanNIC := nic.New("wan0", wanMAC, nil)
	lanNIC.Up()
	wanNIC.Up()

	r := device.NewRouter(routing.NewTable())
	r.AddInterface("lan0", lanNIC, lanIP, lanMask, arpsvc.NewCache(clk))
	r.AddInterface("wan0", wanNIC, wanIP, wanMask, arpsvc.NewCache(clk))

	dest := addr.MustParseIPv4("10.0.0.55")
	destMAC := addr.MustParseMAC("02:00:00:00:00:FF")
	wanIface, ok := r.Engine().Interface("wan0")
	require.True(t, ok)
	wanIface.ARP.AddEntry(dest, destMAC, 0)

	hostMAC := addr.MustParseMAC("02:00:00:00:00:10")
	hostIP := addr.MustParseIPv4("192.168.1.50")
	hostDev, hostNIC := newHost(t, "eth0", hostMAC, hostIP, lanMask, clk)
	hostNIC.SetGateway(lanIP)

	lanIface, ok := r.Engine().Interface("lan0")
	require.True(t, ok)
	lanIface.ARP.AddEntry(hostIP, hostMAC, 0)
	hostDev.ARP().AddEntry(lanIP, lanMAC, 0)

	var delivered bool
	wanNIC.SetOnTransmit(func([]byte) { delivered = true })
	lanNIC.SetOnTransmit(func(data []byte) { hostNIC.Receive(data) })
	hostNIC.SetOnTransmit(func(data []byte) { lanNIC.Receive(data) })

	hostDev.Ping(dest, []byte("x"))

	assert.True(t, delivered)
	assert.Equal(t, uint64(1), r.Engine().Statistics().PacketsForwarded)
}

func TestRouter_dropsWhenNoRoute(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}

	lanMask := addr.MustParseSubnetMask("255.255.255.0")
	lanIP := addr.MustParseIPv4("192.168.1.1")
	lanMAC := addr.MustParseMAC("02:00:00:00:00:01")

	lanNIC := nic.New("lan0", lanMAC, nil)
	lanNIC.Up()

	r := device.NewRouter(routing.NewTable())
	r.AddInterface("lan0", lanNIC, lanIP, lanMask, arpsvc.NewCache(clk))

	hostMAC := addr.MustParseMAC("02:00:00:00:00:10")
	hostIP := addr.MustParseIPv4("192.168.1.50")
	hostDev, hostNIC := newHost(t, "eth0", hostMAC, hostIP, lanMask, clk)
	hostNIC.SetGateway(lanIP)

	lanIface, ok := r.Engine().Interface("lan0")
	require.True(t, ok)
	lanIface.ARP.AddEntry(hostIP, hostMAC, 0)
	hostDev.ARP().AddEntry(lanIP, lanMAC, 0)

	lanNIC.SetOnTransmit(func(data []byte) { hostNIC.Receive(data) })
	hostNIC.SetOnTransmit(func(data []byte) { lanNIC.Receive(data) })

	hostDev.Ping(addr.MustParseIPv4("203.0.113.9"), []byte("x"))

	assert.Equal(t, uint64(1), r.Engine().Statistics().NoRoute)
}

func TestRouter_dhcpRelayEncapsulatesOfferAndAck(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{now: time.Unix(0, 0)}

	mask := addr.MustParseSubnetMask("255.255.255.0")
	serverIP := addr.MustParseIPv4("192.168.1.1")
	routerMAC := addr.MustParseMAC("02:00:00:00:00:01")

	routerNIC := nic.New("lan0", routerMAC, nil)
	routerNIC.Up()

	r := device.NewRouter(routing.NewTable())
	r.AddInterface("lan0", routerNIC, serverIP, mask, arpsvc.NewCache(clk))

	srv := dhcpserver.New(dhcpserver.Config{
		ServerIP:   serverIP,
		PoolStart:  addr.MustParseIPv4("192.168.1.100"),
		PoolEnd:    addr.MustParseIPv4("192.168.1.200"),
		SubnetMask: mask,
		Gateway:    serverIP,
		LeaseTime:  time.Hour,
		Clock:      clk,
	})
	r.EnableDHCP("lan0", srv)

	clientMAC := addr.MustParseMAC("02:00:00:00:00:02")
	clientNIC := nic.New("eth0", clientMAC, nil)
	clientNIC.Up()

	client := device.NewHost(clientNIC, arpsvc.NewCache(clk), nil, dhcpclient.New(clientMAC, "client1", clk), clk, 0)

	routerNIC.SetOnTransmit(func(data []byte) { clientNIC.Receive(data) })
	clientNIC.SetOnTransmit(func(data []byte) { routerNIC.Receive(data) })

	client.StartDHCP()

	lease, bound := client.DHCPClient().Lease()
	require.True(t, bound)
	assert.True(t, lease.IP.ToU32() >= addr.MustParseIPv4("192.168.1.100").ToU32())
	assert.True(t, lease.IP.ToU32() <= addr.MustParseIPv4("192.168.1.200").ToU32())
	assert.Equal(t, serverIP, lease.ServerIP)

	stats := srv.Statistics()
	assert.Equal(t, uint64(1), stats.TotalIssued)
}
