package dnstraverse

import (
	"errors"
	"net"
	"strings"
	"syscall"
)

func (t *Traverser) usingUDP() (yes bool) {
	t.mu.RLock()
	yes = t.useUDP
	t.mu.RUnlock()
	return
}

func (t *Traverser) usingIPv6() (yes bool) {
	t.mu.RLock()
	yes = t.useIPv6
	t.mu.RUnlock()
	return
}

// maybeDisableIPv6 drops IPv6 root servers and stops offering IPv6
// addresses once the local network proves unreachable over v6, instead of
// retrying every branch of the tree against a dead transport.
func (t *Traverser) maybeDisableIPv6(err error) (disabled bool) {
	if err == nil {
		return false
	}
	errstr := err.Error()
	if errors.Is(err, syscall.ENETUNREACH) || errors.Is(err, syscall.EHOSTUNREACH) ||
		strings.Contains(errstr, "network is unreachable") || strings.Contains(errstr, "no route to host") {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.useIPv6 {
			disabled = true
			t.useIPv6 = false
			var idx int
			for i := range t.roots {
				if t.roots[i].Is4() {
					t.roots[idx] = t.roots[i]
					idx++
				}
			}
			t.roots = t.roots[:idx]
		}
	}
	return
}

func (t *Traverser) maybeDisableUDP(err error) (disabled bool) {
	var ne net.Error
	if errors.As(err, &ne) && !ne.Timeout() {
		errstr := err.Error()
		if errors.Is(err, syscall.ENOSYS) || errors.Is(err, syscall.EPROTONOSUPPORT) || strings.Contains(errstr, "network not implemented") {
			t.mu.Lock()
			defer t.mu.Unlock()
			disabled = t.useUDP
			t.useUDP = false
		}
	}
	return
}
