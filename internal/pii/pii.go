// Package pii normalizes and hashes applicant PII before it reaches any store.
package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Hash returns the hex SHA-256 of a value. Empty input hashes to "".
func Hash(value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// IdentityID derives a stable identity id from an SSN and a full name.
func IdentityID(ssn, name string) string {
	return Hash(NormalizeSSN(ssn) + "|" + NormalizeName(name))
}

// NormalizeSSN strips everything but digits.
func NormalizeSSN(ssn string) string {
	return digits(ssn)
}

// NormalizePhone keeps the last ten digits of a phone number.
func NormalizePhone(phone string) string {
	d := digits(phone)
	if len(d) > 10 {
		d = d[len(d)-10:]
	}
	return d
}

// NormalizeEmail lower-cases an address and drops dots and plus-tags in the local part.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domainPart := email[:at], email[at+1:]
	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	local = strings.ReplaceAll(local, ".", "")
	return local + "@" + domainPart
}

// NormalizeAddress collapses whitespace and punctuation and upper-cases an address.
func NormalizeAddress(address string) string {
	return strings.Join(strings.FieldsFunc(strings.ToUpper(address), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}

// NormalizeName collapses whitespace and upper-cases a name.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
