// Package phonetic maps words to phonetic codes so that spelling variants of
// a word land on the same index key.
package phonetic

import (
	"fmt"
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	apperrors "github.com/Adithya-Monish-Kumar-K/chatlog-search/pkg/errors"
)

// Encoder maps a token to a primary and an alternate code. Either code may be
// empty. Implementations must be deterministic and safe for concurrent use.
type Encoder interface {
	Encode(token string) (primary, alternate string, err error)
}

// EncoderFunc adapts a plain function to the Encoder interface.
type EncoderFunc func(token string) (string, string, error)

func (f EncoderFunc) Encode(token string) (string, string, error) {
	return f(token)
}

// DoubleMetaphone encodes tokens with the Double Metaphone algorithm. Codes
// are at most four characters and case-insensitive with respect to the input.
type DoubleMetaphone struct{}

// Encode returns the Double Metaphone codes of token. A panic inside the
// algorithm is reported as ErrEncodingFailed.
func (DoubleMetaphone) Encode(token string) (primary, alternate string, err error) {
	defer func() {
		if r := recover(); r != nil {
			primary, alternate = "", ""
			err = fmt.Errorf("%w: %q: %v", apperrors.ErrEncodingFailed, token, r)
		}
	}()
	primary, alternate = matchr.DoubleMetaphone(token)
	return primary, alternate, nil
}

// Result is the outcome of encoding one token. Err is set when the encoder
// failed, in which case Codes is empty.
type Result struct {
	Token string
	Codes []string
	Err   error
}

// Failed reports whether the encoder rejected the token.
func (r Result) Failed() bool {
	return r.Err != nil
}

// EncodeToken encodes a single token into its distinct, trimmed, non-empty
// codes. An empty primary code yields no codes at all. The alternate is
// gated on the primary as returned, before trimming, so a whitespace-only
// primary contributes nothing itself but still admits the alternate.
func EncodeToken(enc Encoder, token string) Result {
	primary, alternate, err := enc.Encode(token)
	if err != nil {
		return Result{Token: token, Err: err}
	}
	if primary == "" {
		return Result{Token: token}
	}
	var codes []string
	for _, code := range []string{primary, alternate} {
		if code = strings.TrimSpace(code); code != "" && !slices.Contains(codes, code) {
			codes = append(codes, code)
		}
	}
	return Result{Token: token, Codes: codes}
}

// Encode encodes every token, returning one Result per token in input order.
func Encode(enc Encoder, tokens []string) []Result {
	results := make([]Result, 0, len(tokens))
	for _, token := range tokens {
		results = append(results, EncodeToken(enc, token))
	}
	return results
}

// DistinctCodes returns the union of the codes of every successful result,
// in first-seen order.
func DistinctCodes(results []Result) []string {
	seen := make(map[string]struct{})
	codes := make([]string, 0, len(results))
	for _, r := range results {
		for _, code := range r.Codes {
			if _, ok := seen[code]; ok {
				continue
			}
			seen[code] = struct{}{}
			codes = append(codes, code)
		}
	}
	return codes
}
