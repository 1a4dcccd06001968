package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
)

// NewOTP returns a numeric one-time code of the given length drawn from
// crypto/rand. Leading zeros are valid: the code space for six digits is the
// full 000000–999999 range.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashCode returns the sha256 digest of a code. Records persist only the
// digest; the plaintext code exists in memory and in the outbound mail.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// VerifyCode compares a submitted code against a stored digest without
// short-circuiting on the first mismatched byte.
func VerifyCode(code string, hash [32]byte) bool {
	submitted := HashCode(code)
	return subtle.ConstantTimeCompare(submitted[:], hash[:]) == 1
}

// IsNumericString reports whether s is non-empty and all ASCII digits.
func IsNumericString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidEmail applies RFC 5322 parsing plus the structural checks the rest of
// the pipeline assumes: a single bare address with a dotted domain.
func ValidEmail(email string) bool {
	if len(email) < 6 || len(email) > 254 {
		return false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}

	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".")
}

// MaskEmail renders an address safe for public challenge parameters:
// first and last rune of the local part with the middle elided.
func MaskEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return "***"
	}

	local, domain := email[:at], email[at:]
	if len(local) <= 2 {
		return local[:1] + "***" + domain
	}
	return local[:1] + "***" + local[len(local)-1:] + domain
}
