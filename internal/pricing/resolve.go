package pricing

import (
	"sort"
	"strings"
	"time"
)

// DiscountRule is the catalog view of a discount the resolver works on.
// AppliesTo holds the restricted ticket type names; an empty set means the
// discount applies to every ticket type.
type DiscountRule struct {
	Code       string
	Percentage int
	ExpiryDate time.Time
	AppliesTo  map[string]struct{}
}

// SubmittedCode pairs a trimmed client code with the catalog rule found for
// it. Rule stays nil when no discount exists under that code.
type SubmittedCode struct {
	Code string
	Rule *DiscountRule
}

type LineItem struct {
	TicketTypeName string
	Quantity       int
}

// AppliedDiscount is a valid code together with the subset of requested
// ticket types it can discount in this request.
type AppliedDiscount struct {
	Percentage int
	AppliesTo  []string
}

// Resolution buckets every submitted code. Classification is data, not an
// error: the price calculator consumes ValidApplicable and the other two
// buckets are surfaced to the caller untouched.
type Resolution struct {
	ValidApplicable   map[string]AppliedDiscount
	ValidInapplicable []string
	Invalid           []string
}

// Resolve classifies submitted codes against the requested line items.
// Blank codes are dropped before classification. A code is invalid when no
// rule exists or the rule expired strictly before today; valid but
// inapplicable when none of the requested ticket types is in its applicable
// set; valid and applicable otherwise.
func Resolve(lines []LineItem, codes []SubmittedCode, today time.Time) Resolution {
	out := Resolution{
		ValidApplicable:   make(map[string]AppliedDiscount),
		ValidInapplicable: make([]string, 0),
		Invalid:           make([]string, 0),
	}

	requested := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.TicketTypeName]; ok {
			continue
		}
		seen[line.TicketTypeName] = struct{}{}
		requested = append(requested, line.TicketTypeName)
	}
	sort.Strings(requested)

	day := truncateToDay(today)
	for _, submitted := range codes {
		code := strings.TrimSpace(submitted.Code)
		if code == "" {
			continue
		}
		rule := submitted.Rule
		if rule == nil || truncateToDay(rule.ExpiryDate).Before(day) {
			out.Invalid = append(out.Invalid, code)
			continue
		}

		applicable := make([]string, 0, len(requested))
		for _, typeName := range requested {
			if ruleApplies(rule, typeName) {
				applicable = append(applicable, typeName)
			}
		}
		if len(applicable) == 0 {
			out.ValidInapplicable = append(out.ValidInapplicable, code)
			continue
		}
		out.ValidApplicable[code] = AppliedDiscount{
			Percentage: rule.Percentage,
			AppliesTo:  applicable,
		}
	}
	return out
}

// BestDiscountForType selects the single discount applied to a line: the
// highest applicable percentage, with equal percentages broken by the
// lexicographically smallest code so selection stays deterministic.
func (r Resolution) BestDiscountForType(typeName string) (code string, percentage int) {
	codes := make([]string, 0, len(r.ValidApplicable))
	for c := range r.ValidApplicable {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	for _, c := range codes {
		applied := r.ValidApplicable[c]
		if !containsType(applied.AppliesTo, typeName) {
			continue
		}
		if applied.Percentage > percentage {
			code = c
			percentage = applied.Percentage
		}
	}
	return code, percentage
}

func ruleApplies(rule *DiscountRule, typeName string) bool {
	if len(rule.AppliesTo) == 0 {
		return true
	}
	_, ok := rule.AppliesTo[typeName]
	return ok
}

func containsType(types []string, typeName string) bool {
	for _, t := range types {
		if t == typeName {
			return true
		}
	}
	return false
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
