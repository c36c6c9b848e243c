package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// DefaultCredentialLength is the length of generated random credentials.
const DefaultCredentialLength = 8

const (
	upperAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	lowerAlphabet = "abcdefghijkmnpqrstuvwxyz"
	digitAlphabet = "0123456789"
)

var combinedAlphabet = upperAlphabet + lowerAlphabet + digitAlphabet

// dobLayouts are the accepted date-of-birth input forms.
var dobLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"02012006",
}

// ParseDOB parses a date of birth in any accepted form.
func ParseDOB(value string) (time.Time, bool) {
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// DOBCredential derives the 8-character DDMMYYYY credential from a date.
func DOBCredential(dob time.Time) string {
	return dob.Format("02012006")
}

// RandomCredential generates a credential of the given length guaranteed to
// contain at least one uppercase letter, one lowercase letter and one digit,
// with the remaining characters drawn uniformly from the combined alphabet
// and the whole string shuffled.
func RandomCredential(length int) (string, error) {
	if length < 3 {
		length = DefaultCredentialLength
	}
	chars := make([]byte, 0, length)
	for _, alphabet := range []string{upperAlphabet, lowerAlphabet, digitAlphabet} {
		c, err := pick(alphabet)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < length {
		c, err := pick(combinedAlphabet)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	if err := shuffle(chars); err != nil {
		return "", err
	}
	return string(chars), nil
}

func pick(alphabet string) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
	if err != nil {
		return 0, fmt.Errorf("identity: random credential: %w", err)
	}
	return alphabet[n.Int64()], nil
}

func shuffle(chars []byte) error {
	for i := len(chars) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("identity: shuffle credential: %w", err)
		}
		j := n.Int64()
		chars[i], chars[j] = chars[j], chars[i]
	}
	return nil
}
