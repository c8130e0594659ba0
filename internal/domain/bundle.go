package domain

import "sort"

// Bundle holds intelligence extracted from a conversation. Each field has
// set semantics: sorted, no duplicates.
type Bundle struct {
	PaymentHandles []string `json:"paymentHandles,omitempty"`
	PhoneNumbers   []string `json:"phoneNumbers,omitempty"`
	BankAccounts   []string `json:"bankAccounts,omitempty"`
	Links          []string `json:"links,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// Merge returns the per-field set union of b and other. Merging is
// commutative and idempotent; neither input is modified.
func (b Bundle) Merge(other Bundle) Bundle {
	return Bundle{
		PaymentHandles: unionSorted(b.PaymentHandles, other.PaymentHandles),
		PhoneNumbers:   unionSorted(b.PhoneNumbers, other.PhoneNumbers),
		BankAccounts:   unionSorted(b.BankAccounts, other.BankAccounts),
		Links:          unionSorted(b.Links, other.Links),
		Keywords:       unionSorted(b.Keywords, other.Keywords),
	}
}

// Empty reports whether the bundle contains no intelligence at all.
func (b Bundle) Empty() bool { return b.Total() == 0 }

// Total returns the number of distinct items across all categories.
func (b Bundle) Total() int {
	return len(b.PaymentHandles) + len(b.PhoneNumbers) +
		len(b.BankAccounts) + len(b.Links) + len(b.Keywords)
}

// Clone returns a deep copy of the bundle.
func (b Bundle) Clone() Bundle {
	return Bundle{
		PaymentHandles: append([]string(nil), b.PaymentHandles...),
		PhoneNumbers:   append([]string(nil), b.PhoneNumbers...),
		BankAccounts:   append([]string(nil), b.BankAccounts...),
		Links:          append([]string(nil), b.Links...),
		Keywords:       append([]string(nil), b.Keywords...),
	}
}

func unionSorted(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
