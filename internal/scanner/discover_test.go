package scanner

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reconctl/internal/memstore"
)

// fakeConn is the minimum net.Conn surface the scanner touches.
type fakeConn struct {
	net.Conn
	readData []byte
}

func (c *fakeConn) Read(b []byte) (int, error) {
	if len(c.readData) == 0 {
		return 0, errors.New("eof")
	}
	n := copy(b, c.readData)
	return n, nil
}
func (c *fakeConn) Write(b []byte) (int, error)       { return len(b), nil }
func (c *fakeConn) Close() error                      { return nil }
func (c *fakeConn) SetDeadline(t time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

// fakeDialer answers only for a fixed set of "alive" addresses.
type fakeDialer struct {
	mu    sync.Mutex
	alive map[string]bool
	dials []string
}

func (d *fakeDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, address)
	d.mu.Unlock()
	if d.alive[address] {
		return &fakeConn{}, nil
	}
	return nil, errors.New("connection refused")
}

type fakeBus struct {
	mu   sync.Mutex
	msgs []string
}

func (b *fakeBus) Publish(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, msg)
}

func (b *fakeBus) snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.msgs...)
}

func TestEnumerateHosts_ExcludesNetworkAndBroadcastForSlash24(t *testing.T) {
	ips, err := enumerateHosts("192.168.1.0/24")
	require.NoError(t, err)
	require.Len(t, ips, 254)
	require.NotContains(t, ips, "192.168.1.0")
	require.NotContains(t, ips, "192.168.1.255")
	require.Contains(t, ips, "192.168.1.1")
	require.Contains(t, ips, "192.168.1.254")
}

func TestEnumerateHosts_Slash31UsesBothAddresses(t *testing.T) {
	ips, err := enumerateHosts("10.0.0.0/31")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"10.0.0.0", "10.0.0.1"}, ips)
}

func TestEnumerateHosts_Slash32IsSingleAddress(t *testing.T) {
	ips, err := enumerateHosts("10.0.0.5/32")
	require.NoError(t, err)
	require.Equal(t, []string{"10.0.0.5"}, ips)
}

func TestEnumerateHosts_RejectsGarbageCIDR(t *testing.T) {
	_, err := enumerateHosts("not-a-cidr")
	require.Error(t, err)
}

func TestDiscover_UpsertsOnlyLiveHosts(t *testing.T) {
	repo := memstore.New()
	bus := &fakeBus{}
	dialer := &fakeDialer{alive: map[string]bool{"10.0.0.2:80": true}}

	found, err := Discover(context.Background(), repo, bus, dialer, "10.0.0.0/30", 4)
	require.NoError(t, err)
	require.Equal(t, 1, found)

	hosts, err := repo.ListHosts(context.Background())
	require.NoError(t, err)
	require.Len(t, hosts, 1)
	require.Equal(t, "10.0.0.2", hosts[0].IP)

	require.Contains(t, bus.snapshot(), "host_found:10.0.0.2")
}

func TestDiscover_NoHostsAliveYieldsZero(t *testing.T) {
	repo := memstore.New()
	bus := &fakeBus{}
	dialer := &fakeDialer{alive: map[string]bool{}}

	found, err := Discover(context.Background(), repo, bus, dialer, "10.0.0.0/30", 4)
	require.NoError(t, err)
	require.Equal(t, 0, found)
}
