// Package codec turns on-chain contract identifiers into display addresses.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
)

// ContractAddressTag marks an address derived from a contract identifier.
const ContractAddressTag byte = 0x03

// zeroSymbol is the first symbol of the base58 alphabet.
const zeroSymbol = "1"

// ErrInvalidIdentifier is returned for identifiers that are not pairs of hex digits.
var ErrInvalidIdentifier = errors.New("invalid contract identifier")

// DeriveAddress encodes the tagged identifier bytes as a base58 big-endian
// integer. Each leading zero byte of the identifier adds one zero symbol in
// front, since the integer conversion loses them.
func DeriveAddress(contractIDHex string) (string, error) {
	if len(contractIDHex)%2 != 0 {
		return "", fmt.Errorf("%w: odd length %d", ErrInvalidIdentifier, len(contractIDHex))
	}
	id, err := hex.DecodeString(contractIDHex)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidIdentifier, err)
	}

	tagged := make([]byte, 0, len(id)+1)
	tagged = append(tagged, ContractAddressTag)
	tagged = append(tagged, id...)

	return strings.Repeat(zeroSymbol, leadingZeros(id)) + base58.Encode(tagged), nil
}

func leadingZeros(b []byte) int {
	n := 0
	for n < len(b) && b[n] == 0 {
		n++
	}
	return n
}
