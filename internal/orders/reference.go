package orders

import (
	"crypto/rand"
	"math/big"
)

const referenceCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewReference returns PIX- followed by six unambiguous uppercase characters.
func NewReference() (string, error) {
	b := make([]byte, 6)
	max := big.NewInt(int64(len(referenceCharset)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = referenceCharset[n.Int64()]
	}
	return ReferencePrefix + string(b), nil
}
