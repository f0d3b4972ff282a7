package util

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

const keyChars = "abcdefghijklmnopqrstuvwxyz"

// KeyLength matches the ten-letter keys hastebin servers hand out.
const KeyLength = 10

// GenKey returns a random lowercase key that exists reports as unused.
func GenKey(exists func(string) bool) (string, error) {
	max := big.NewInt(int64(len(keyChars)))
	for retry := 0; retry < 5; retry++ {
		buf := make([]byte, KeyLength)
		for i := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", errors.Wrap(err, "rand fail")
			}
			buf[i] = keyChars[n.Int64()]
		}
		key := string(buf)
		if !exists(key) {
			return key, nil
		}
	}
	return "", errors.New("key collision after 5 retries")
}
