package flow

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ToSmallestUnit converts a decimal token amount to its integer smallest unit without rounding.
// Values with more fractional digits than decimals are rejected.
func ToSmallestUnit(value string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s is negative", ErrInvalidAmount, value)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s has more than %d fractional digits", ErrInvalidAmount, value, decimals)
	}

	return scaled.BigInt(), nil
}

// AddressToBytes32 left-pads a 20-byte address to the 32-byte recipient form bridges expect.
func AddressToBytes32(address string) ([32]byte, error) {
	var out [32]byte
	if !common.IsHexAddress(address) {
		return out, fmt.Errorf("%w: address %q", ErrInvalidSession, address)
	}

	copy(out[:], common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32))
	return out, nil
}
