// Package evidence canonicalizes structured evidence values so that separate
// reports of the same account, phone number or name compare equal.
package evidence

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Evidence types accepted on a submission.
const (
	TypeBankAccount  = "BANK_ACCOUNT"
	TypePhoneNumber  = "PHONE_NUMBER"
	TypeEmail        = "EMAIL"
	TypeSocialMedia  = "SOCIAL_MEDIA"
	TypeWebsite      = "WEBSITE"
	TypeCryptoWallet = "CRYPTO_WALLET"
)

// Types lists every valid evidence type.
var Types = []string{
	TypeBankAccount, TypePhoneNumber, TypeEmail,
	TypeSocialMedia, TypeWebsite, TypeCryptoWallet,
}

// IsActionable reports whether evidence of this type is enough to act on
// (freeze an account, trace a number).
func IsActionable(evidenceType string) bool {
	return evidenceType == TypeBankAccount || evidenceType == TypePhoneNumber
}

// Normalizer turns raw evidence strings into matching keys.
type Normalizer struct {
	prefixes    []string
	countryCode string
}

// NewNormalizer builds a normalizer that strips the given honorific prefixes.
// countryCode (digits only, e.g. "66") enables rewriting international phone
// numbers to their trunk form; pass "" to disable.
func NewNormalizer(prefixes []string, countryCode string) *Normalizer {
	sorted := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p != "" {
			sorted = append(sorted, p)
		}
	}
	// longest first so "นางสาว" wins over "นาง"
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i]) > len(sorted[j])
	})

	return &Normalizer{
		prefixes:    sorted,
		countryCode: strings.TrimPrefix(countryCode, "+"),
	}
}

// Normalize strips one honorific prefix, removes whitespace and hyphens and
// lower-cases the rest. The rule is re-applied until the value is stable, so
// Normalize(Normalize(x)) == Normalize(x) even for stacked titles.
func (n *Normalizer) Normalize(raw string) string {
	s := n.normalizeOnce(raw)
	for {
		next := n.normalizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func (n *Normalizer) normalizeOnce(raw string) string {
	if raw == "" {
		return ""
	}

	s := strings.TrimSpace(raw)
	for _, p := range n.prefixes {
		if rest, ok := strings.CutPrefix(s, p); ok && boundary(p, rest) {
			s = rest
			break
		}
	}

	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, s))
}

// boundary reports whether prefix may be stripped in front of rest. Thai
// titles are written attached to the name. Latin titles must be followed by
// whitespace so "Missy" or "Dr.Who@mail.com" keep their first letters.
func boundary(prefix, rest string) bool {
	if !isASCII(prefix) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(rest)
	return rest != "" && unicode.IsSpace(r)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// NormalizeEvidence applies Normalize and then any type specific rule.
// Phone numbers written with the configured country code are folded onto the
// domestic trunk prefix: "+66-81-234-5678" and "081 234 5678" both become "0812345678".
func (n *Normalizer) NormalizeEvidence(evidenceType, raw string) string {
	s := n.Normalize(raw)
	if evidenceType == TypePhoneNumber && n.countryCode != "" {
		if rest, ok := strings.CutPrefix(s, "+"+n.countryCode); ok && rest != "" {
			if !strings.HasPrefix(rest, "0") {
				rest = "0" + rest
			}
			s = rest
		}
	}
	return s
}

// NameSimilarity returns a score in [0,1] derived from the edit distance of
// the normalized names. 1 means identical. It is a hint for reviewers and is
// never used as a matching key.
func (n *Normalizer) NameSimilarity(a, b string) float64 {
	na, nb := []rune(n.Normalize(a)), []rune(n.Normalize(b))
	longest := len(na)
	if len(nb) > longest {
		longest = len(nb)
	}
	if longest == 0 {
		return 0
	}

	dist := levenshtein.ComputeDistance(string(na), string(nb))
	return 1 - float64(dist)/float64(longest)
}
