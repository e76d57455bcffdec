// Command vnetd runs the network simulator's seed scenarios and prints
// their terminal-style output, the way a student would exercise the
// simulator from a shell.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/osutil"
	"github.com/netlab-sim/vnet/internal/addr"
	"github.com/netlab-sim/vnet/internal/arpsvc"
	"github.com/netlab-sim/vnet/internal/clock"
	"github.com/netlab-sim/vnet/internal/device"
	"github.com/netlab-sim/vnet/internal/dhcpclient"
	"github.com/netlab-sim/vnet/internal/dhcpserver"
	"github.com/netlab-sim/vnet/internal/icmpsvc"
	"github.com/netlab-sim/vnet/internal/l2"
	"github.com/netlab-sim/vnet/internal/nic"
	"github.com/netlab-sim/vnet/internal/routing"
	"github.com/netlab-sim/vnet/internal/topology"
	"golang.org/x/sync/errgroup"
)

// scenario is one seed scenario of spec.md §8: a self-contained simulation
// built from its own topology registry, returning the terminal-style
// transcript a human running it would see.
type scenario struct {
	name string
	run  func() (string, error)
}

var scenarios = []scenario{
	{name: "s1-ping-linear-lan", run: scenarioPingLinearLAN},
	{name: "s3-dhcp-dora", run: scenarioDHCPDORA},
	{name: "s4-dhcp-pool-exhaustion", run: scenarioDHCPPoolExhaustion},
	{name: "s6-ttl-expired-router", run: scenarioTTLExpiredRouter},
	{name: "s8-longest-prefix", run: scenarioLongestPrefix},
}

func main() {
	logger := slogutil.New(nil)
	ctx := context.Background()

	name := "all"
	if len(os.Args) > 1 {
		name = os.Args[1]
	}

	if err := run(ctx, logger, name); err != nil {
		logger.ErrorContext(ctx, "scenario run failed", slogutil.KeyError, err)
		os.Exit(osutil.ExitCodeFailure)
	}
}

// run dispatches to a single named scenario, or runs every scenario
// concurrently (each is a fully independent simulation instance, so there
// is no shared mutable state to race on) when name is "all".
func run(ctx context.Context, logger *slog.Logger, name string) error {
	if name != "all" {
		for _, s := range scenarios {
			if s.name != name {
				continue
			}

			logger.InfoContext(ctx, "running scenario", "name", s.name)

			out, err := s.run()
			if err != nil {
				return errors.Annotate(err, "running %s: %w", s.name)
			}

			fmt.Print(out)

			return nil
		}

		return fmt.Errorf("unknown scenario %q", name)
	}

	logger.InfoContext(ctx, "running all scenarios", "count", len(scenarios))

	eg, _ := errgroup.WithContext(ctx)
	outputs := make([]string, len(scenarios))

	for i, s := range scenarios {
		eg.Go(func() error {
			out, err := s.run()
			if err != nil {
				return errors.Annotate(err, "running %s: %w", s.name)
			}

			outputs[i] = fmt.Sprintf("=== %s ===\n%s\n", s.name, out)

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	for _, out := range outputs {
		fmt.Print(out)
	}

	return nil
}

// newLANHost builds a statically addressed host wired into reg under
// ifaceName "eth0".
func newLANHost(reg *topology.Registry, clk clock.Clock, mac addr.MAC, ip addr.IPv4, mask addr.SubnetMask) (*device.Host, *topology.Device) {
	n := nic.New("eth0", mac, nil)
	n.Up()
	n.SetIP(ip, mask)

	h := device.NewHost(n, arpsvc.NewCache(clk), icmpsvc.NewService(clk), nil, clk, 0)
	dev := reg.AddDevice(topology.KindHost, 0, 0, h, map[string]*nic.NIC{"eth0": n})

	return h, dev
}

// scenarioPingLinearLAN implements spec.md §8 S1: two hosts on a switch,
// one ping.
func scenarioPingLinearLAN() (string, error) {
	clk := clock.System
	reg := topology.NewRegistry()

	mask := addr.MustParseSubnetMask("255.255.255.0")
	h1, devH1 := newLANHost(reg, clk, addr.MustParseMAC("02:00:00:00:01:01"), addr.MustParseIPv4("192.168.1.10"), mask)
	_, devH2 := newLANHost(reg, clk, addr.MustParseMAC("02:00:00:00:01:02"), addr.MustParseIPv4("192.168.1.20"), mask)

	sw := device.NewSwitch(l2.NewMACTable(0, 0, clk))
	n0 := nic.New("port0", addr.MustParseMAC("02:00:00:00:FF:00"), nil)
	n1 := nic.New("port1", addr.MustParseMAC("02:00:00:00:FF:01"), nil)
	n0.Up()
	n1.Up()
	sw.AddPort(0, n0, 0)
	sw.AddPort(1, n1, 0)
	devSwitch := reg.AddDevice(topology.KindSwitch, 5, 0, sw, map[string]*nic.NIC{"0": n0, "1": n1})

	if _, ok := reg.AddConnection(devH1.ID, "eth0", devSwitch.ID, "0"); !ok {
		return "", fmt.Errorf("wiring H1 to switch port 0 failed")
	}
	if _, ok := reg.AddConnection(devH2.ID, "eth0", devSwitch.ID, "1"); !ok {
		return "", fmt.Errorf("wiring H2 to switch port 1 failed")
	}

	dest := addr.MustParseIPv4("192.168.1.20")

	// The first ping misses the ARP cache: it sends an ARP request and
	// drops its echo. The synchronous ARP reply fills the cache, so the
	// second ping sends its echo.
	h1.Ping(dest, []byte("ping"))
	h1.Ping(dest, []byte("ping"))

	st := h1.ICMP().Stats(dest)

	lost := st.Sent - st.Received
	lossPct := 0
	if st.Sent > 0 {
		lossPct = int(lost * 100 / st.Sent)
	}

	return fmt.Sprintf(
		"PING %s: %d packets transmitted, %d received, %d%% packet loss\n",
		dest, st.Sent, st.Received, lossPct,
	), nil
}

// scenarioDHCPDORA implements spec.md §8 S3: a router with an integrated
// DHCP server leasing an address to a host via a full DORA exchange.
func scenarioDHCPDORA() (string, error) {
	clk := clock.System
	reg := topology.NewRegistry()

	mask := addr.MustParseSubnetMask("255.255.255.0")
	serverIP := addr.MustParseIPv4("192.168.1.1")
	routerMAC := addr.MustParseMAC("02:00:00:00:02:01")

	routerNIC := nic.New("eth0", routerMAC, nil)
	routerNIC.Up()

	r := device.NewRouter(routing.NewTable())
	r.AddInterface("eth0", routerNIC, serverIP, mask, arpsvc.NewCache(clk))

	srv := dhcpserver.New(dhcpserver.Config{
		ServerIP:   serverIP,
		PoolStart:  addr.MustParseIPv4("192.168.1.100"),
		PoolEnd:    addr.MustParseIPv4("192.168.1.200"),
		SubnetMask: mask,
		Gateway:    serverIP,
		DNSServers: []addr.IPv4{addr.MustParseIPv4("8.8.8.8")},
		LeaseTime:  24 * time.Hour,
		Clock:      clk,
	})
	r.EnableDHCP("eth0", srv)

	devRouter := reg.AddDevice(topology.KindRouter, 0, 0, r, map[string]*nic.NIC{"eth0": routerNIC})

	clientMAC := addr.MustParseMAC("02:00:00:00:02:02")
	clientNIC := nic.New("eth0", clientMAC, nil)
	clientNIC.Up()
	client := device.NewHost(clientNIC, arpsvc.NewCache(clk), icmpsvc.NewService(clk), dhcpclient.New(clientMAC, "h1", clk), clk, 0)
	devHost := reg.AddDevice(topology.KindHost, 10, 0, client, map[string]*nic.NIC{"eth0": clientNIC})

	if _, ok := reg.AddConnection(devHost.ID, "eth0", devRouter.ID, "eth0"); !ok {
		return "", fmt.Errorf("wiring host to router failed")
	}

	client.StartDHCP()

	lease, bound := client.DHCPClient().Lease()
	if !bound {
		return "DHCPDISCOVER on eth0\nNo DHCPOFFERS received\n", nil
	}

	renewalSecs := int(lease.T1 / time.Second)

	return fmt.Sprintf(
		"DHCPDISCOVER on eth0\n"+
			"DHCPOFFER of %s from %s\n"+
			"DHCPACK of %s from %s\n"+
			"bound to %s -- renewal in %d seconds\n",
		lease.IP, lease.ServerIP, lease.IP, lease.ServerIP, lease.IP, renewalSecs,
	), nil
}

// scenarioDHCPPoolExhaustion implements spec.md §8 S4: a two-address pool
// serves two clients; a third gets no offer.
func scenarioDHCPPoolExhaustion() (string, error) {
	clk := clock.System

	mask := addr.MustParseSubnetMask("255.255.255.0")
	serverIP := addr.MustParseIPv4("192.168.1.1")

	srv := dhcpserver.New(dhcpserver.Config{
		ServerIP:   serverIP,
		PoolStart:  addr.MustParseIPv4("192.168.1.100"),
		PoolEnd:    addr.MustParseIPv4("192.168.1.101"),
		SubnetMask: mask,
		Gateway:    serverIP,
		LeaseTime:  time.Hour,
		Clock:      clk,
	})

	out := ""

	for i := 1; i <= 3; i++ {
		mac := addr.MustParseMAC(fmt.Sprintf("02:00:00:00:03:%02x", i))
		c := dhcpclient.New(mac, fmt.Sprintf("client%d", i), clk)

		discover := c.StartDiscover()

		offer, ok := srv.HandleDiscover(discover)
		if !ok {
			out += fmt.Sprintf("client%d: No DHCPOFFERS received\n", i)

			continue
		}

		c.HandleOffer(offer)
		request := c.BuildRequest()
		ack := srv.HandleRequest(request)
		c.HandleAck(ack)

		lease, _ := c.Lease()
		out += fmt.Sprintf("client%d: bound to %s\n", i, lease.IP)
	}

	stats := srv.Statistics()
	out += fmt.Sprintf("server: activeLeases=%d\n", stats.ActiveLeases)

	return out, nil
}

// scenarioTTLExpiredRouter implements spec.md §8 S6: a TTL=1 packet dies at
// the first router hop and earns an ICMP Time Exceeded back to the sender.
func scenarioTTLExpiredRouter() (string, error) {
	clk := clock.System

	lanMask := addr.MustParseSubnetMask("255.255.255.0")
	lanIP := addr.MustParseIPv4("192.168.1.1")
	lanMAC := addr.MustParseMAC("02:00:00:00:04:01")

	lanNIC := nic.New("lan0", lanMAC, nil)
	lanNIC.Up()

	r := device.NewRouter(routing.NewTable())
	r.AddInterface("lan0", lanNIC, lanIP, lanMask, arpsvc.NewCache(clk))

	hostMAC := addr.MustParseMAC("02:00:00:00:04:02")
	hostIP := addr.MustParseIPv4("192.168.1.50")
	hostNIC := nic.New("eth0", hostMAC, nil)
	hostNIC.Up()
	hostNIC.SetIP(hostIP, lanMask)
	hostNIC.SetGateway(lanIP)
	hostDev := device.NewHost(hostNIC, arpsvc.NewCache(clk), icmpsvc.NewService(clk), nil, clk, 1)

	lanIface, ok := r.Engine().Interface("lan0")
	if !ok {
		return "", fmt.Errorf("router interface lan0 missing")
	}
	lanIface.ARP.AddEntry(hostIP, hostMAC, 0)
	hostDev.ARP().AddEntry(lanIP, lanMAC, 0)

	lanNIC.SetOnTransmit(func(data []byte) { hostNIC.Receive(data) })
	hostNIC.SetOnTransmit(func(data []byte) { lanNIC.Receive(data) })

	hostDev.Ping(addr.MustParseIPv4("8.8.8.8"), []byte("x"))

	stats := r.Engine().Statistics()

	return fmt.Sprintf(
		"ICMP Time Exceeded received from %s\nrouter.statistics.ttlExpired=%d\n",
		lanIP, stats.TTLExpired,
	), nil
}

// scenarioLongestPrefix implements spec.md §8 S8: longest-prefix route
// selection between overlapping routes.
func scenarioLongestPrefix() (string, error) {
	table := routing.NewTable()

	table.SetConnected("eth0", addr.MustParseIPv4("1.1.1.2"), addr.MustCIDR(24))
	table.SetConnected("eth1", addr.MustParseIPv4("2.2.2.2"), addr.MustCIDR(24))

	if err := table.AddRoute(addr.MustParseIPv4("10.0.0.0"), addr.MustCIDR(8), addr.MustParseIPv4("1.1.1.1"), true, "eth0", 0); err != nil {
		return "", err
	}
	if err := table.AddRoute(addr.MustParseIPv4("10.1.0.0"), addr.MustCIDR(16), addr.MustParseIPv4("2.2.2.2"), true, "eth1", 0); err != nil {
		return "", err
	}

	out := ""

	for _, dest := range []addr.IPv4{addr.MustParseIPv4("10.1.5.6"), addr.MustParseIPv4("10.2.5.6")} {
		route, ok := table.Lookup(dest)
		if !ok {
			out += fmt.Sprintf("lookup(%s): no route\n", dest)

			continue
		}

		out += fmt.Sprintf("lookup(%s): via %s/%d iface %s\n", dest, route.Network, route.Mask.PrefixLen(), route.Iface)
	}

	return out, nil
}
