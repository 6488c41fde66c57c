package netutil

import (
	"github.com/pkg/errors"
	"golang.org/x/net/idna"
)

// Longest name DNS can carry, excluding the trailing dot.
const maxDomainLength = 253

// ValidateDomainName checks value is a registrable domain name. Unicode
// names are accepted if they map to valid IDNA.
func ValidateDomainName(value string) error {
	switch {
	case value == "":
		return errors.New("domain name is empty")
	case len(value) > maxDomainLength:
		return errors.Errorf("domain name longer than %d bytes", maxDomainLength)
	}

	if _, err := idna.Registration.ToASCII(value); err != nil {
		return errors.Wrapf(err, "invalid domain name %q", value)
	}
	return nil
}
