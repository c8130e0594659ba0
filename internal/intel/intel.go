// Package intel extracts scam intelligence from message text using
// regex patterns tuned for the Indian payments context.
package intel

import (
	"regexp"
	"strings"

	"github.com/soyeahso/snare/internal/domain"
)

// paymentProviders is the allow-list used to separate payment handles from
// ordinary email addresses. A handle is kept only when its domain part
// matches one of these.
var paymentProviders = []string{
	"paytm", "phonepe", "gpay", "ybl", "okaxis", "okhdfcbank", "oksbi", "okicici",
}

// keywordVocabulary is the fixed suspicious-keyword list. Matching is
// case-insensitive containment, one hit per entry per message.
var keywordVocabulary = []string{
	"kyc", "update", "verify", "account", "blocked", "suspended",
	"otp", "cvv", "pin", "password", "aadhaar", "pan",
	"prize", "lottery", "won", "congratulations",
	"urgent", "immediately", "expire", "cancel",
	"refund", "tax", "cashback", "reward",
	"click here", "download", "apk", "install",
	"bank", "axis", "hdfc", "sbi", "icici", "paytm", "phonepe", "googlepay",
	"police", "arrest", "court", "legal action",
	"loan approved", "credit card", "offer",
	"delivery", "courier", "parcel", "custom duty",
}

var (
	handlePattern = regexp.MustCompile(`\b[\w.\-]+@[\w\-]+\b`)
	linkPattern   = regexp.MustCompile(`https?://[^\s]+|www\.[^\s]+|bit\.ly/[^\s]+|tinyurl\.com/[^\s]+`)

	// digitSpanPattern captures runs of digits that may be broken up by
	// spaces or dashes, so "+91 98765 43210" is seen as one candidate.
	digitSpanPattern = regexp.MustCompile(`\+?\d[\d\s\-]*\d|\d`)
	digitRunPattern  = regexp.MustCompile(`\d+`)
	accountPattern   = regexp.MustCompile(`\b\d{9,18}\b`)
)

// FromMessage extracts all intelligence categories from a single message.
// It is pure and idempotent; malformed or empty input yields an empty bundle.
func FromMessage(text string) domain.Bundle {
	var raw domain.Bundle
	lower := strings.ToLower(text)

	for _, tok := range handlePattern.FindAllString(text, -1) {
		at := strings.LastIndex(tok, "@")
		dom := strings.ToLower(tok[at+1:])
		for _, p := range paymentProviders {
			if strings.Contains(dom, p) {
				raw.PaymentHandles = append(raw.PaymentHandles, tok)
				break
			}
		}
	}

	// Phones first: their raw digit forms are excluded from the bank
	// account pass so one number is never reported as both.
	phones := make(map[string]struct{})
	phoneRaw := make(map[string]struct{})
	for _, span := range digitSpanPattern.FindAllString(text, -1) {
		squeezed := squeezeDigits(span)
		if p, ok := normalizePhone(squeezed); ok {
			phones[p] = struct{}{}
			phoneRaw[squeezed] = struct{}{}
			continue
		}
		// A span that is not itself a phone may still contain separate
		// numbers, e.g. a phone next to an account number.
		for _, run := range digitRunPattern.FindAllString(span, -1) {
			if p, ok := normalizePhone(run); ok {
				phones[p] = struct{}{}
				phoneRaw[run] = struct{}{}
			}
		}
	}
	for p := range phones {
		raw.PhoneNumbers = append(raw.PhoneNumbers, p)
	}

	for _, run := range accountPattern.FindAllString(text, -1) {
		// Accounts shorter than 11 digits are too phone-like to trust.
		if len(run) < 11 {
			continue
		}
		if _, isPhone := phoneRaw[run]; isPhone {
			continue
		}
		if _, isPhone := phones[run]; isPhone {
			continue
		}
		raw.BankAccounts = append(raw.BankAccounts, run)
	}

	raw.Links = linkPattern.FindAllString(text, -1)

	for _, kw := range keywordVocabulary {
		if strings.Contains(lower, kw) {
			raw.Keywords = append(raw.Keywords, kw)
		}
	}

	// Merge with the zero bundle to normalize every field into a sorted set.
	return domain.Bundle{}.Merge(raw)
}

// FromConversation unions per-message extractions over a whole conversation.
// The result is independent of message order.
func FromConversation(msgs []domain.Message) domain.Bundle {
	var b domain.Bundle
	for _, m := range msgs {
		b = b.Merge(FromMessage(m.Text))
	}
	return b
}

// HighValue reports whether a bundle is valuable enough to justify concluding
// a session: a payment handle, a bank account, or a phone number paired with
// a link.
func HighValue(b domain.Bundle) bool {
	hasHandle := len(b.PaymentHandles) > 0
	hasPhone := len(b.PhoneNumbers) > 0
	hasLink := len(b.Links) > 0
	hasBank := len(b.BankAccounts) > 0
	return hasHandle || (hasPhone && hasLink) || hasBank
}

func squeezeDigits(span string) string {
	var sb strings.Builder
	for _, r := range span {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// normalizePhone strips an optional +91/91/0 prefix from a digit string and
// accepts it as an Indian mobile number when exactly 10 digits starting 6-9
// remain.
func normalizePhone(digits string) (string, bool) {
	switch {
	case len(digits) == 12 && strings.HasPrefix(digits, "91"):
		digits = digits[2:]
	case len(digits) == 11 && strings.HasPrefix(digits, "0"):
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	if digits[0] < '6' || digits[0] > '9' {
		return "", false
	}
	return digits, true
}
