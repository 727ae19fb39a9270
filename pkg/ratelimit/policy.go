package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/resortgenius/concierge-engine/pkg/tenant"
)

const (
	PlanFree       = "free"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"

	KindTenant = "tenant"
	KindIP     = "ip"
)

// Policy decides which key and limit a request is counted under.
type Policy struct {
	// Limits maps plan name to requests per Window.
	Limits map[string]int
	Window time.Duration
	// Open disables limiting entirely (demo / unlimited operation).
	Open bool
	// Proxies whose forwarding headers identify the client. Empty means the
	// socket peer is always the client.
	Proxies Proxies

	exempt map[string]struct{}
}

// NewPolicy builds a Policy. Paths in exempt are never counted.
func NewPolicy(limits map[string]int, window time.Duration, open bool, exempt []string) *Policy {
	p := &Policy{
		Limits: limits,
		Window: window,
		Open:   open,
		exempt: make(map[string]struct{}, len(exempt)),
	}
	for _, path := range exempt {
		p.exempt[path] = struct{}{}
	}
	return p
}

// Bypass reports whether a request to path skips the limiter altogether.
// It is decided before anything is recorded.
func (p *Policy) Bypass(path string) bool {
	if p.Open {
		return true
	}
	_, ok := p.exempt[path]
	return ok
}

// KeyFor returns the limiter key and its kind. Identified tenants are keyed
// by tenant; everyone else by client address.
func KeyFor(orgID tenant.ID, clientIP string) (key, kind string) {
	if orgID != tenant.None {
		return "tenant:" + orgID.String(), KindTenant
	}
	return "ip:" + clientIP, KindIP
}

// LimitFor returns the per-window limit for a plan. Unknown plans and
// anonymous (IP-keyed) callers get the free tier.
func (p *Policy) LimitFor(plan, kind string) int {
	free := p.Limits[PlanFree]
	if kind == KindIP {
		return free
	}
	if limit, ok := p.Limits[strings.ToLower(plan)]; ok {
		return limit
	}
	return free
}

// ClientIP returns the address the request is counted under. See
// Proxies.ClientIP.
func (p *Policy) ClientIP(r *http.Request) string {
	return p.Proxies.ClientIP(r)
}

// Proxies are the peers whose forwarding headers are believed.
type Proxies []netip.Prefix

// ParseProxies accepts CIDR ranges and bare addresses.
func ParseProxies(entries []string) (Proxies, error) {
	var out Proxies
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", entry, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// ClientIP extracts the caller address. Forwarding headers are honoured only
// when the socket peer is a trusted proxy; X-Forwarded-For is walked from the
// right, skipping trusted hops.
func (p Proxies) ClientIP(r *http.Request) string {
	peer := PeerIP(r)
	if !p.trusts(peer) {
		return peer
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		hops := strings.Split(fwd, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !p.trusts(hop) {
				return hop
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return peer
}

func (p Proxies) trusts(ip string) bool {
	if len(p) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// PeerIP is the host part of the socket peer address.
func PeerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
