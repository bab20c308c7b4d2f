// Package intel extracts and canonicalizes fraud indicators from free text.
//
// Raw pattern matches over-capture (trailing punctuation, OCR confusions,
// spaced-out digits), so every candidate goes through a per-kind normalizer
// before it is deduplicated. Normalizers never panic; a rejected candidate
// returns ok == false.
package intel

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/ashureev/honeypot/internal/domain"
)

// CountryCode is prefixed to domestic phone numbers.
const CountryCode = "91"

var (
	ifscPattern   = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
	upiPattern    = regexp.MustCompile(`^[a-z0-9._-]+@[a-z0-9-]+(?:\.[a-z0-9-]+)*$`)
	ethPattern    = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
	bech32Pattern = regexp.MustCompile(`^bc1[02-9ac-hj-np-z]{25,59}$`)
	base58Pattern = regexp.MustCompile(`^[13][1-9A-HJ-NP-Za-km-z]{25,34}$`)
)

// NormalizeBankAccount keeps the digits of s and accepts runs of 9 to 18 digits.
func NormalizeBankAccount(s string) (string, bool) {
	digits := onlyDigits(s)
	if len(digits) < 9 || len(digits) > 18 {
		return "", false
	}
	return digits, true
}

// NormalizeIFSC uppercases s, strips separators and repairs a letter O typed
// in place of the mandatory zero at index 4.
func NormalizeIFSC(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	code := b.String()
	if len(code) != 11 {
		return "", false
	}
	if code[4] == 'O' {
		code = code[:4] + "0" + code[5:]
	}
	if !ifscPattern.MatchString(code) {
		return "", false
	}
	return code, true
}

// NormalizeUPI lowercases a local@domain payment handle.
func NormalizeUPI(s string) (string, bool) {
	handle := strings.ToLower(trimPunct(s))
	if handle == "" || strings.Contains(handle, "://") || strings.HasPrefix(handle, "www.") {
		return "", false
	}
	if !upiPattern.MatchString(handle) {
		return "", false
	}
	return handle, true
}

// NormalizePhone accepts 10-digit domestic numbers and 12-digit numbers that
// already carry the country code. The result is in +<cc><number> form.
func NormalizePhone(s string) (string, bool) {
	digits := onlyDigits(s)
	switch {
	case len(digits) == 10:
		return "+" + CountryCode + digits, true
	case len(digits) == 12 && strings.HasPrefix(digits, CountryCode):
		return "+" + digits, true
	default:
		return "", false
	}
}

// NormalizeURL accepts http(s):// and www. links and trims trailing sentence
// punctuation.
func NormalizeURL(s string) (string, bool) {
	u := strings.TrimSpace(s)
	u = strings.TrimLeft(u, `("'<[`)
	u = strings.TrimRight(u, `).,;:!?]"'>`)
	lower := strings.ToLower(u)
	var rest string
	switch {
	case strings.HasPrefix(lower, "https://"):
		rest = u[len("https://"):]
	case strings.HasPrefix(lower, "http://"):
		rest = u[len("http://"):]
	case strings.HasPrefix(lower, "www."):
		rest = u[len("www."):]
	default:
		return "", false
	}
	if rest == "" || strings.ContainsAny(rest, " \t\n") {
		return "", false
	}
	return u, true
}

// NormalizeWallet accepts Ethereum and Bitcoin (bech32 or legacy base58)
// addresses. Case-insensitive encodings are lowercased.
func NormalizeWallet(s string) (string, bool) {
	w := trimPunct(s)
	lower := strings.ToLower(w)
	switch {
	case ethPattern.MatchString(lower):
		return lower, true
	case bech32Pattern.MatchString(lower):
		return lower, true
	case base58Pattern.MatchString(w):
		return w, true
	}
	return "", false
}

// Normalizer returns the canonicalization function for kind.
func Normalizer(kind domain.IndicatorKind) func(string) (string, bool) {
	switch kind {
	case domain.KindBankAccount:
		return NormalizeBankAccount
	case domain.KindUPI:
		return NormalizeUPI
	case domain.KindIFSC:
		return NormalizeIFSC
	case domain.KindPhone:
		return NormalizePhone
	case domain.KindURL:
		return NormalizeURL
	case domain.KindWallet:
		return NormalizeWallet
	}
	return func(string) (string, bool) { return "", false }
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || (unicode.IsPunct(r) && r != '_') || unicode.IsSymbol(r)
	})
}
