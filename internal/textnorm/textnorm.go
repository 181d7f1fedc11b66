// Package textnorm turns raw review text into the token sequence used by both
// training and inference. Both sides must call Normalize; nothing else in the
// repository is allowed to tokenize review text.
package textnorm

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"
)

// Reason describes why a normalization result is degraded.
type Reason string

const (
	ReasonCoerced         Reason = "coerced_non_string"
	ReasonEmpty           Reason = "no_tokens"
	ReasonForeignLanguage Reason = "non_target_language"
)

// TargetLanguage is the ISO 639-1 code of the stopword list in use.
const TargetLanguage = "en"

// Result is the outcome of Analyze. Tokens are always identical to what
// Normalize returns for the same input.
type Result struct {
	Tokens   []string
	Lang     string
	Degraded bool
	Reasons  []Reason
}

// Steps lists the normalization stages in the order they are applied. It is
// recorded in model metadata.
func Steps() []string {
	return []string{"lowercase", "tokenization", "remove_stopwords", "remove_non_alphabetic"}
}

// Normalize lower-cases v, splits it into word tokens and keeps only purely
// alphabetic tokens that are not stopwords. Non-string values are coerced
// with fmt.Sprint; nil becomes the empty string. The result is never nil.
func Normalize(v any) []string {
	text, _ := coerce(v)
	return normalizeString(text)
}

// Analyze is Normalize plus the degradation report: coerced input, an empty
// token sequence, or text reliably detected as a language other than English.
func Analyze(v any) Result {
	text, coerced := coerce(v)
	r := Result{Tokens: normalizeString(text)}
	if coerced {
		r.Reasons = append(r.Reasons, ReasonCoerced)
	}
	if len(r.Tokens) == 0 {
		r.Reasons = append(r.Reasons, ReasonEmpty)
	}
	if strings.TrimSpace(text) != "" {
		info := whatlanggo.Detect(text)
		r.Lang = info.Lang.Iso6391()
		if info.IsReliable() && r.Lang != TargetLanguage {
			r.Reasons = append(r.Reasons, ReasonForeignLanguage)
		}
	}
	r.Degraded = len(r.Reasons) > 0
	return r
}

// Join renders tokens the way they are shown in reports.
func Join(tokens []string) string {
	return strings.Join(tokens, " ")
}

// Text returns the string the normalizer would read from v.
func Text(v any) string {
	s, _ := coerce(v)
	return s
}

func coerce(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, false
	case []byte:
		return string(t), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

func normalizeString(text string) []string {
	words := tokenize(strings.ToLower(text))
	tokens := make([]string, 0, len(words))
	for _, w := range words {
		if !isAlpha(w) || IsStopword(w) {
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// tokenize splits on whitespace, punctuation and symbols. Apostrophes are
// boundaries, so "don't" yields "don" and "t". Hyphens and underscores bind,
// which keeps "well-made" as one (non-alphabetic) token.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '-' || r == '_'
}

func isAlpha(word string) bool {
	if word == "" {
		return false
	}
	for _, r := range word {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
