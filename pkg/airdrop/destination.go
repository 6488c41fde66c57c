package airdrop

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/code-payments/spl-airdrop/pkg/common"
)

var (
	// ErrInvalidDestination indicates a malformed entry in a destination list.
	ErrInvalidDestination = errors.New("invalid destination")
	// ErrTotalOverflow indicates the requested counts don't fit in a uint64.
	ErrTotalOverflow = errors.New("total airdrop amount overflows uint64")
)

// Destination is a single airdrop recipient. Count is in the mint's base
// units.
type Destination struct {
	Owner *common.Account
	Count uint64
}

type destinationJSON struct {
	Address string          `json:"address,omitempty"`
	Addr    string          `json:"addr,omitempty"`
	Count   json.RawMessage `json:"count"`
}

// UnmarshalJSON accepts `addr` as an alias of `address`.
func (d *Destination) UnmarshalJSON(data []byte) error {
	var raw destinationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	address := raw.Address
	if len(address) == 0 {
		address = raw.Addr
	} else if len(raw.Addr) > 0 && raw.Addr != raw.Address {
		return errors.New("conflicting address and addr")
	}
	if len(address) == 0 {
		return errors.New("missing address")
	}

	owner, err := common.NewAccountFromPublicKeyString(address)
	if err != nil {
		return errors.Wrapf(err, "invalid address %q", address)
	}

	count, err := parseCount(raw.Count)
	if err != nil {
		return err
	}

	d.Owner = owner
	d.Count = count
	return nil
}

func (d *Destination) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Address string `json:"address"`
		Count   uint64 `json:"count"`
	}{
		Address: d.Owner.String(),
		Count:   d.Count,
	})
}

// parseCount accepts a JSON number, or a string holding one, as long as it
// is a non-negative integer that fits in a uint64.
func parseCount(raw json.RawMessage) (uint64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("missing count")
	}

	value := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &value); err != nil {
			return 0, errors.Wrap(err, "invalid count")
		}
	}

	count, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, errors.Errorf("invalid count %s: must be a non-negative integer", value)
	}
	return count, nil
}

// ParseDestinations decodes a JSON array of destinations. Every entry is
// validated before any is returned.
func ParseDestinations(data []byte) ([]*Destination, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrap(err, "destination list must be a JSON array")
	}

	destinations := make([]*Destination, len(entries))
	for i, entry := range entries {
		var d Destination
		if err := json.Unmarshal(entry, &d); err != nil {
			return nil, errors.Wrapf(ErrInvalidDestination, "entry %d: %v", i, err)
		}
		destinations[i] = &d
	}
	return destinations, nil
}

// LoadDestinations reads a destination list file.
func LoadDestinations(path string) ([]*Destination, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read destination list %s", path)
	}

	destinations, err := ParseDestinations(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid destination list %s", path)
	}
	return destinations, nil
}

// WriteDestinations writes destinations in the format LoadDestinations reads.
func WriteDestinations(path string, destinations []*Destination) error {
	if destinations == nil {
		destinations = []*Destination{}
	}

	data, err := json.MarshalIndent(destinations, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal destinations")
	}

	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "failed to write destination list %s", path)
	}
	return nil
}

// TotalCount sums the counts of all destinations.
func TotalCount(destinations []*Destination) (uint64, error) {
	var total uint64
	for _, d := range destinations {
		if total > math.MaxUint64-d.Count {
			return 0, ErrTotalOverflow
		}
		total += d.Count
	}
	return total, nil
}
