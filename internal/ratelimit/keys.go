// keys.go: Rate-limit key derivation from inbound requests
package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// clientIPHeaders are consulted in trust-decreasing order before falling back
// to the transport-level peer address.
var clientIPHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// ClientKey extracts the client identifier for rate limiting: the first
// non-empty proxy header, else the host part of RemoteAddr.
func ClientKey(r *http.Request) string {
	for _, header := range clientIPHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		// X-Forwarded-For may carry a chain; the first element is the client.
		if idx := strings.Index(value, ","); idx != -1 {
			value = value[:idx]
		}
		if ip := strings.TrimSpace(value); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// IsPrivateIP reports whether the address belongs to a private or loopback
// range. Used for the optional internal-traffic bypass.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// CategoryRule binds a request category to its admission limits. Patterns are
// path prefixes matched in rule order; the first match decides the category.
type CategoryRule struct {
	Name          string
	Patterns      []string
	RatePerMinute int
	Burst         int
	Cost          int
}

// RefillPerSec converts the per-minute rate to the bucket refill rate.
func (r CategoryRule) RefillPerSec() float64 {
	return float64(r.RatePerMinute) / 60.0
}

// KeyPolicy derives composite rate-limit keys: client identifier plus request
// category. A single client holds an independent bucket per category, so
// exhausting one category never starves another.
type KeyPolicy struct {
	rules       []CategoryRule
	defaultRule CategoryRule
}

// NewKeyPolicy builds a policy from an ordered rule list and the fallback
// limits applied when no pattern matches.
func NewKeyPolicy(rules []CategoryRule, defaultRule CategoryRule) *KeyPolicy {
	if defaultRule.Name == "" {
		defaultRule.Name = "default"
	}
	normalized := make([]CategoryRule, len(rules))
	for i, rule := range rules {
		if rule.Cost <= 0 {
			rule.Cost = 1
		}
		normalized[i] = rule
	}
	if defaultRule.Cost <= 0 {
		defaultRule.Cost = 1
	}
	return &KeyPolicy{rules: normalized, defaultRule: defaultRule}
}

// Categorize matches path against the ordered pattern lists; the first rule
// with a matching prefix wins, else the default rule applies.
func (p *KeyPolicy) Categorize(path string) CategoryRule {
	for _, rule := range p.rules {
		for _, pattern := range rule.Patterns {
			if strings.HasPrefix(path, pattern) {
				return rule
			}
		}
	}
	return p.defaultRule
}

// CompositeKey joins client identity and category into the bucket key.
func CompositeKey(client, category string) string {
	return "ip:" + client + ":cat:" + category
}
