package guard

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/omniagentpay/payguard/internal/domain"
)

// addressMatcher matches a payment target against configured addresses.
// Addresses compare case-insensitively; entries containing '*' are globs;
// patterns are regular expressions.
type addressMatcher struct {
	exact    map[string]struct{}
	globs    []string
	patterns []*regexp.Regexp
}

func newAddressMatcher(cfg domain.RuleConfig) (*addressMatcher, error) {
	addresses, hasAddresses, err := cfg.Strings(domain.ConfigAddresses)
	if err != nil {
		return nil, err
	}
	patterns, hasPatterns, err := cfg.Strings(domain.ConfigPatterns)
	if err != nil {
		return nil, err
	}
	if !hasAddresses && !hasPatterns {
		return nil, errors.Newf("%s or %s is required", domain.ConfigAddresses, domain.ConfigPatterns)
	}

	m := &addressMatcher{exact: make(map[string]struct{}, len(addresses))}
	for _, a := range addresses {
		a = normalizeTarget(a)
		if a == "" {
			continue
		}
		if strings.Contains(a, "*") {
			if _, err := path.Match(a, ""); err != nil {
				return nil, errors.Wrapf(err, "invalid address glob %q", a)
			}
			m.globs = append(m.globs, a)
			continue
		}
		m.exact[a] = struct{}{}
	}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid pattern %q", p)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Match reports whether target is covered by the matcher.
func (m *addressMatcher) Match(target string) bool {
	norm := normalizeTarget(target)
	if norm == "" {
		return false
	}
	if _, ok := m.exact[norm]; ok {
		return true
	}
	for _, g := range m.globs {
		if ok, _ := path.Match(g, norm); ok {
			return true
		}
	}
	for _, re := range m.patterns {
		if re.MatchString(target) || re.MatchString(norm) {
			return true
		}
	}
	return false
}

// Target returns what allow and block lists match against: the host of an
// http(s) URL recipient, otherwise the recipient address, falling back to
// the recipient name.
func Target(c domain.PaymentCandidate) string {
	raw := strings.TrimSpace(c.RecipientAddress)
	if raw == "" {
		raw = strings.TrimSpace(c.Recipient)
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return raw
}

func normalizeTarget(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
