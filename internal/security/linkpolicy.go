package security

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrLinkRejected is returned when a URL may not be handed to users.
var ErrLinkRejected = errors.New("link rejected")

// LinkPolicyConfig restricts which hosts published links may point to.
type LinkPolicyConfig struct {
	// AllowDomains, when set, is the only set of hosts links may use.
	// Subdomains match: "example.com" also allows "dl.example.com".
	AllowDomains []string `yaml:"allow_domains"`

	// DenyDomains always wins over AllowDomains.
	DenyDomains []string `yaml:"deny_domains"`
}

// LinkPolicy checks outgoing links. Only http and https are accepted, and
// literal loopback, private and link-local addresses are always refused.
type LinkPolicy struct {
	allow []string
	deny  []string
}

// NewLinkPolicy builds a policy from cfg.
func NewLinkPolicy(cfg LinkPolicyConfig) *LinkPolicy {
	return &LinkPolicy{
		allow: normalizeDomains(cfg.AllowDomains),
		deny:  normalizeDomains(cfg.DenyDomains),
	}
}

func normalizeDomains(in []string) []string {
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

// Check returns nil when rawURL may be published.
func (p *LinkPolicy) Check(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLinkRejected, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrLinkRejected, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrLinkRejected)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
			return fmt.Errorf("%w: %s is not a public address", ErrLinkRejected, host)
		}
	}
	for _, d := range p.deny {
		if matchDomain(host, d) {
			return fmt.Errorf("%w: %s is denied", ErrLinkRejected, host)
		}
	}
	if len(p.allow) == 0 {
		return nil
	}
	for _, d := range p.allow {
		if matchDomain(host, d) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is not in allow_domains", ErrLinkRejected, host)
}

// matchDomain reports whether host is domain or one of its subdomains.
func matchDomain(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
