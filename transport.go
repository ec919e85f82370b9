package dnstraverse

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// exchange sends m to server over UDP (or TCP when AlwaysTCP forces it;
// when AllowTCP is set, a truncated, failed or unusable UDP exchange is
// retried over TCP), retrying up to Config.Retries times, each network
// exchange, dial included, bounded by Config.Timeout.
func (t *Traverser) exchange(ctx context.Context, m *dns.Msg, server netip.Addr) (resp *dns.Msg, err error) {
	attempts := t.cfg.Retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err = t.exchangeOnce(ctx, m, server)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return resp, err
}

func (t *Traverser) exchangeOnce(ctx context.Context, m *dns.Msg, server netip.Addr) (resp *dns.Msg, err error) {
	network := "udp"
	if t.cfg.AlwaysTCP {
		network = "tcp"
	}
	if network == "udp" && t.usable(network, server) {
		resp, err = t.exchangeWithNetwork(ctx, "udp", m, server)
		if err != nil {
			if t.maybeDisableUDP(err) {
				err = nil
			}
		}
		if err == nil && resp != nil && !resp.Truncated {
			return resp, nil
		}
	}
	if t.cfg.AllowTCP || t.cfg.AlwaysTCP {
		return t.exchangeWithNetwork(ctx, "tcp", m, server)
	}
	if resp != nil {
		return resp, nil
	}
	return nil, err
}

func (t *Traverser) exchangeWithNetwork(ctx context.Context, network string, m *dns.Msg, server netip.Addr) (resp *dns.Msg, err error) {
	if !t.usable(network, server) {
		return nil, errors.New("dnstraverse: network unusable for server " + server.String())
	}
	deadline := t.deadline(ctx)
	dialCtx := ctx
	if !deadline.IsZero() {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}
	var conn *dns.Conn
	if conn, err = t.dialDNSConn(dialCtx, network, server); err != nil {
		if server.Is6() {
			t.maybeDisableIPv6(err)
		}
		return nil, err
	}
	defer conn.Close()

	if !deadline.IsZero() {
		_ = conn.SetDeadline(deadline)
	}
	if err = conn.WriteMsg(m); err != nil {
		return nil, err
	}
	return conn.ReadMsg()
}

func (t *Traverser) dialDNSConn(ctx context.Context, network string, server netip.Addr) (*dns.Conn, error) {
	addrPort := netip.AddrPortFrom(server, t.cfg.DNSPort)
	rawConn, err := t.cfg.Dialer.DialContext(ctx, network, addrPort.String())
	if err != nil {
		return nil, err
	}
	conn := &dns.Conn{Conn: rawConn}
	if strings.HasPrefix(network, "udp") {
		conn.UDPSize = t.cfg.UDPSize
	}
	return conn, nil
}

func (t *Traverser) usable(network string, addr netip.Addr) bool {
	yes := strings.HasPrefix(network, "tcp") || t.usingUDP()
	return yes && (addr.Is4() || t.usingIPv6())
}

func (t *Traverser) deadline(ctx context.Context) time.Time {
	var deadline time.Time
	if ctx != nil {
		if d, ok := ctx.Deadline(); ok {
			deadline = d
		}
	}
	if t.cfg.Timeout > 0 {
		limit := time.Now().Add(t.cfg.Timeout)
		if deadline.IsZero() || limit.Before(deadline) {
			deadline = limit
		}
	}
	return deadline
}

// setEDNS attaches an OPT pseudo-RR sized per Config.UDPSize. A UDPSize of
// 512 disables EDNS0 in outgoing queries, per spec.md section 8.
func (t *Traverser) setEDNS(m *dns.Msg) {
	if t.cfg.UDPSize == 512 {
		return
	}
	opt := &dns.OPT{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT}}
	opt.SetUDPSize(t.cfg.UDPSize)
	m.Extra = append(m.Extra, opt)
}
