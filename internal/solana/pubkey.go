package solana

import (
	"github.com/mr-tron/base58"
)

// ValidPubkey reports whether s is a syntactically valid Solana public
// key: base58 with standard 32-44 character length decoding to 32 bytes.
func ValidPubkey(s string) bool {
	if len(s) < 32 || len(s) > 44 {
		return false
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(decoded) == 32
}
