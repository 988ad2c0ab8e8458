package domain

import (
	"net/url"
	"strings"
)

// Hostname returns the lowercase host of rawURL without a leading "www.".
func Hostname(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

// Denylist holds non-news domains (auction sites, listicle mills).
type Denylist struct {
	domains []string
}

// NewDenylist normalizes the configured domains.
func NewDenylist(domains []string) Denylist {
	normalized := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d != "" {
			normalized = append(normalized, d)
		}
	}
	return Denylist{domains: normalized}
}

// BlocksHost reports whether host is a listed domain or one of its subdomains.
func (d Denylist) BlocksHost(host string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if host == "" {
		return false
	}
	for _, blocked := range d.domains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return true
		}
	}
	return false
}

// BlocksURL applies BlocksHost to the URL's hostname.
func (d Denylist) BlocksURL(rawURL string) bool {
	return d.BlocksHost(Hostname(rawURL))
}

// BlocksSource matches a publisher display name such as "eBay" or "listverse.com".
func (d Denylist) BlocksSource(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return false
	}
	compact := strings.ReplaceAll(name, " ", "")
	for _, blocked := range d.domains {
		label, _, _ := strings.Cut(blocked, ".")
		if compact == blocked || compact == label || d.BlocksHost(compact) {
			return true
		}
	}
	return false
}
