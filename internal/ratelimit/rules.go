package ratelimit

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/Proton-105/omnikiosk/pkg/config"
)

// Rules holds the configured per-client limit and the addresses that bypass it.
type Rules struct {
	enabled  bool
	limit    int
	window   time.Duration
	exact    map[netip.Addr]struct{}
	prefixes []netip.Prefix
}

// NewRules parses cfg. Whitelist entries are IP addresses or CIDR ranges.
func NewRules(cfg config.RateLimitConfig) (*Rules, error) {
	rules := &Rules{
		enabled: cfg.Enabled,
		exact:   make(map[netip.Addr]struct{}),
	}

	if !cfg.Enabled {
		return rules, nil
	}

	limit, window, err := parseRule(cfg.PerClient)
	if err != nil {
		return nil, fmt.Errorf("per_client rule: %w", err)
	}
	rules.limit = limit
	rules.window = window

	for _, entry := range cfg.Whitelist {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("whitelist entry %q: %w", entry, err)
			}
			rules.prefixes = append(rules.prefixes, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("whitelist entry %q: %w", entry, err)
		}
		rules.exact[addr.Unmap()] = struct{}{}
	}

	return rules, nil
}

// Enabled reports whether limits are enforced at all.
func (r *Rules) Enabled() bool {
	return r != nil && r.enabled
}

// IsWhitelisted returns true if the client IP bypasses rate limits.
func (r *Rules) IsWhitelisted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	if _, ok := r.exact[addr]; ok {
		return true
	}

	for _, prefix := range r.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}

	return false
}

// PerClient returns the limit and window applied to each client IP.
func (r *Rules) PerClient() (int, time.Duration) {
	return r.limit, r.window
}

func parseRule(rule config.RateLimitRule) (int, time.Duration, error) {
	if rule.Limit <= 0 {
		return 0, 0, errors.New("limit must be positive")
	}
	if rule.Window == "" {
		return 0, 0, errors.New("window duration is not set")
	}

	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return 0, 0, err
	}
	if window <= 0 {
		return 0, 0, errors.New("window duration must be positive")
	}

	return rule.Limit, window, nil
}
