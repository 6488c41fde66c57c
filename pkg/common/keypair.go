package common

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"os"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// LoadKeypairFile reads a keypair from a JSON file. Two encodings are
// accepted: an array of the 64 secret key bytes (solana-keygen's format), or
// a string holding the base58 encoded secret key.
func LoadKeypairFile(path string) (*Account, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read keypair file %s", path)
	}

	account, err := DecodeKeypairJSON(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid keypair file %s", path)
	}
	return account, nil
}

// DecodeKeypairJSON decodes a keypair in either of the formats supported by
// LoadKeypairFile.
func DecodeKeypairJSON(data []byte) (*Account, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty keypair")
	}

	var secret []byte
	switch data[0] {
	case '"':
		var encoded string
		if err := json.Unmarshal(data, &encoded); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal keypair string")
		}

		decoded, err := base58.Decode(encoded)
		if err != nil {
			return nil, errors.Wrap(err, "keypair string is not base58")
		}
		secret = decoded
	case '[':
		// []int rather than []byte, which encoding/json treats as base64.
		var ints []int
		if err := json.Unmarshal(data, &ints); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal keypair array")
		}

		secret = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, errors.Errorf("keypair byte %d out of range: %d", i, v)
			}
			secret[i] = byte(v)
		}
	default:
		return nil, errors.New("keypair must be a JSON array or string")
	}

	if len(secret) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("unexpected secret key length: got %d, want %d", len(secret), ed25519.PrivateKeySize)
	}

	return NewAccountFromPrivateKeyBytes(secret)
}
