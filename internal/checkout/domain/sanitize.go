package domain

import (
	"regexp"
	"strings"
)

const genericClientError = "Unable to process payment. Please try again."

var (
	providerName = regexp.MustCompile(`(?i)stripe`)
	extraSpaces  = regexp.MustCompile(`\s{2,}`)
)

// SanitizeMessage removes payment-platform references from a message that
// will be shown to a shopper. "stripe" is removed anywhere. "api" is removed
// wherever it stands as its own token, including identifier parts such as
// api_key, apiKey or StripeAPI, but not inside words like "rapid".
func SanitizeMessage(msg string) string {
	msg = providerName.ReplaceAllString(msg, "")
	msg = stripAPI(msg)
	msg = extraSpaces.ReplaceAllString(msg, " ")
	msg = strings.TrimSpace(strings.Trim(strings.TrimSpace(msg), ":-_"))
	if msg == "" {
		return genericClientError
	}
	return msg
}

// stripAPI drops "api" tokens. A token boundary is a non-letter byte, the
// ends of the string, or a lower-to-upper case change. One underscore joining
// the token to the rest of an identifier goes with it.
func stripAPI(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); {
		if i+3 <= len(s) && strings.EqualFold(s[i:i+3], "api") && apiStarts(s, i) && apiEnds(s, i+3) {
			end := i + 3
			switch {
			case end < len(s) && s[end] == '_':
				end++
			case len(out) > 0 && out[len(out)-1] == '_':
				out = out[:len(out)-1]
			}
			i = end
			continue
		}
		out = append(out, s[i])
		i++
	}
	return string(out)
}

func apiStarts(s string, i int) bool {
	if i == 0 || !isLetter(s[i-1]) {
		return true
	}
	return isLower(s[i-1]) && isUpper(s[i])
}

func apiEnds(s string, j int) bool {
	if j == len(s) || !isLetter(s[j]) {
		return true
	}
	if isLower(s[j-1]) && isUpper(s[j]) {
		return true
	}
	// APIKey: an upper-case run ends where the next word's capital starts.
	return isUpper(s[j-1]) && isUpper(s[j]) && j+1 < len(s) && isLower(s[j+1])
}

func isLetter(b byte) bool { return isLower(b) || isUpper(b) }

func isLower(b byte) bool { return b >= 'a' && b <= 'z' }

func isUpper(b byte) bool { return b >= 'A' && b <= 'Z' }
