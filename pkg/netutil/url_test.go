package netutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateHTTPURL(t *testing.T) {
	for _, valid := range []string{
		"https://api.devnet.solana.com",
		"https://api.mainnet-beta.solana.com/",
		"http://localhost:8899",
		"http://127.0.0.1:8899",
		"http://[::1]:8899",
		"https://rpc.example.com/v1/some-api-key",
	} {
		assert.NoError(t, ValidateHTTPURL(valid, false), valid)
	}

	for _, invalid := range []string{
		"",
		"api.devnet.solana.com",
		"ws://api.devnet.solana.com",
		"https://",
		"https://bad host.com",
		"https://" + strings.Repeat("a", 254) + ".com",
		"://missing-scheme",
	} {
		assert.Error(t, ValidateHTTPURL(invalid, false), invalid)
	}

	assert.NoError(t, ValidateHTTPURL("https://api.devnet.solana.com", true))
	assert.Error(t, ValidateHTTPURL("http://api.devnet.solana.com", true))
}

func TestValidateDomainName(t *testing.T) {
	assert.NoError(t, ValidateDomainName("solana.com"))
	assert.NoError(t, ValidateDomainName("localhost"))
	assert.Error(t, ValidateDomainName(""))
	assert.Error(t, ValidateDomainName(strings.Repeat("a", 254)))
}
