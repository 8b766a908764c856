// Package security checks the base URLs the device talks to.
package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// EndpointPolicy controls which base URLs NormalizeEndpoint accepts.
type EndpointPolicy struct {
	// AllowHTTP permits plain http. https is always accepted.
	AllowHTTP bool
	// AllowPrivate permits loopback, private and link-local targets.
	AllowPrivate bool
}

// NormalizeEndpoint validates a service base URL and returns it without a
// trailing slash. Credentials, query strings and fragments are rejected since
// request paths are appended to the result.
func NormalizeEndpoint(raw string, policy EndpointPolicy) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("endpoint is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.Wrap(err, "parse endpoint")
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !policy.AllowHTTP {
			return "", errors.Errorf("endpoint %q: http is not allowed", raw)
		}
	default:
		return "", errors.Errorf("endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}

	if u.User != nil {
		return "", errors.Errorf("endpoint %q: credentials in URL are not allowed", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", errors.Errorf("endpoint %q: query and fragment are not allowed", raw)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.Errorf("endpoint %q: missing host", raw)
	}
	if err := checkHost(host, policy); err != nil {
		return "", errors.Wrapf(err, "endpoint %q", raw)
	}

	return strings.TrimRight(u.String(), "/"), nil
}

func checkHost(host string, policy EndpointPolicy) error {
	if !policy.AllowPrivate && isLocalName(host) {
		return errors.Errorf("local host %q is not allowed", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// a DNS name, nothing more to check without resolving it
		return nil
	}
	if addr.Zone() != "" && !policy.AllowPrivate {
		return errors.Errorf("zoned address %q is not allowed", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Errorf("address %q is not routable", host)
	}
	if !policy.AllowPrivate &&
		(addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast()) {
		return errors.Errorf("private address %q is not allowed", host)
	}
	return nil
}

func isLocalName(host string) bool {
	return host == "localhost" ||
		strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local")
}
