package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnsafeURL = errors.New("unsafe base URL")

// URLPolicy decides which base URLs a client may talk to.
type URLPolicy struct {
	// AllowPublicHTTP permits plain http to hosts that are not local.
	AllowPublicHTTP bool
	// AllowLocalNetworks permits loopback, private and link-local targets.
	AllowLocalNetworks bool
}

var (
	// StreamServerPolicy accepts any http(s) server, the stream server usually
	// runs next to the client.
	StreamServerPolicy = URLPolicy{AllowPublicHTTP: true, AllowLocalNetworks: true}
	// ModelAPIPolicy keeps API keys off cleartext connections to public hosts.
	ModelAPIPolicy = URLPolicy{AllowLocalNetworks: true}
)

// ValidateBaseURL checks rawURL against p. Hostnames are not resolved, only
// IP literals and well known local names are recognized as local.
func ValidateBaseURL(rawURL string, p URLPolicy) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(ErrUnsafeURL, "could not parse %q: %v", rawURL, err)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.Wrapf(ErrUnsafeURL, "%q has no host", rawURL)
	}

	local, err := isLocal(host)
	if err != nil {
		return errors.Wrapf(ErrUnsafeURL, "%q: %v", rawURL, err)
	}
	if local && !p.AllowLocalNetworks {
		return errors.Wrapf(ErrUnsafeURL, "local host %q is not allowed", host)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !local && !p.AllowPublicHTTP {
			return errors.Wrapf(ErrUnsafeURL, "plain http to %q is not allowed", host)
		}
	default:
		return errors.Wrapf(ErrUnsafeURL, "unsupported scheme %q", u.Scheme)
	}

	return nil
}

func isLocal(host string) (bool, error) {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return true, nil
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false, nil
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return false, errors.Errorf("address %s cannot be dialed", host)
	}
	return addr.Zone() != "" ||
		addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast(), nil
}
