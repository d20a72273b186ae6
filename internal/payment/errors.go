package payment

import "errors"

var (
	// ErrTicketTypeNotFound is returned when a line item references a
	// ticket type the catalog does not know. Pricing never skips such a
	// line silently.
	ErrTicketTypeNotFound = errors.New("ticket type not found")

	ErrValidation               = errors.New("invalid payment request")
	ErrPastVisitDate            = errors.New("visit date is in the past")
	ErrInsufficientAvailability = errors.New("insufficient ticket availability")
	ErrDiscountChanged          = errors.New("discount codes are no longer valid")
	ErrInvalidTotal             = errors.New("order total must be greater than zero")
	ErrPaymentDeclined          = errors.New("payment was declined")
	ErrPurchaseNotFound         = errors.New("purchase not found")
	ErrDiscountNotFound         = errors.New("discount not found")
	ErrTicketTypeInUse          = errors.New("ticket type has committed purchases")
)
