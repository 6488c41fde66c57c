package netutil

import (
	"net"
	"net/url"

	"github.com/pkg/errors"
)

// ValidateHTTPURL checks that value is an absolute http(s) URL whose host is
// an IP address or a valid domain name. With secureOnly set, only https is
// accepted. Nothing is resolved or dialed.
func ValidateHTTPURL(value string, secureOnly bool) error {
	u, err := url.Parse(value)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "https":
	case "http":
		if secureOnly {
			return errors.New("url scheme must be https")
		}
	default:
		return errors.Errorf("unsupported url scheme %q", u.Scheme)
	}

	host := u.Hostname()
	switch {
	case host == "":
		return errors.New("url has no host")
	case net.ParseIP(host) != nil:
		return nil
	}
	return errors.Wrap(ValidateDomainName(host), "invalid url host")
}
