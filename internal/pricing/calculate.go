package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"magicworld/backend/internal/models"
)

var oneHundred = decimal.NewFromInt(100)

// PricedLine is a line item joined with its current catalog unit cost.
type PricedLine struct {
	TicketTypeName string
	Quantity       int
	UnitCost       decimal.Decimal
}

// Calculate aggregates line subtotals and applies the resolution's best
// discount per line. Monetary outputs are rounded to two decimal places
// half-up once, at the end; intermediates stay unrounded so rounding error
// does not compound.
func Calculate(lines []PricedLine, res Resolution) models.PriceQuote {
	subtotal := decimal.Zero
	discountAmount := decimal.Zero
	quoteLines := make([]models.QuoteLine, 0, len(lines))

	for _, line := range lines {
		lineSubtotal := line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineSubtotal)

		code, percentage := res.BestDiscountForType(line.TicketTypeName)
		lineDiscount := decimal.Zero
		if percentage > 0 {
			lineDiscount = lineSubtotal.Mul(decimal.NewFromInt(int64(percentage))).Div(oneHundred)
			discountAmount = discountAmount.Add(lineDiscount)
		}

		quoteLines = append(quoteLines, models.QuoteLine{
			TicketTypeName:  line.TicketTypeName,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitCost,
			LineSubtotal:    lineSubtotal.Round(2),
			DiscountPercent: percentage,
			LineDiscount:    lineDiscount.Round(2),
			AppliedCode:     code,
		})
	}

	total := subtotal.Sub(discountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	quote := models.PriceQuote{
		Subtotal:                   subtotal.Round(2),
		DiscountAmount:             discountAmount.Round(2),
		Total:                      total.Round(2),
		Lines:                      quoteLines,
		ValidCodes:                 make([]string, 0, len(res.ValidApplicable)),
		InvalidCodes:               res.Invalid,
		ValidButNotApplicableCodes: res.ValidInapplicable,
		DiscountPercentages:        make(map[string]int),
		DiscountAppliesTo:          make(map[string][]string),
	}
	for code, applied := range res.ValidApplicable {
		quote.ValidCodes = append(quote.ValidCodes, code)
		quote.DiscountPercentages[code] = applied.Percentage
		quote.DiscountAppliesTo[code] = applied.AppliesTo
	}
	sort.Strings(quote.ValidCodes)
	return quote
}
