package ledger

import "fmt"

// TicketSplit divides a ticket's gross price between organizer and platform.
type TicketSplit struct {
	GrossCents        AmountCents
	PlatformCents     AmountCents
	OrganizerCents    AmountCents
	CommissionPercent Percent
}

// SplitTicket computes the platform commission with half-up rounding and gives the
// organizer the remainder, so the two shares always sum to the gross amount.
func SplitTicket(gross AmountCents, commission Percent) TicketSplit {
	platform := percentOf(gross, commission)
	return TicketSplit{
		GrossCents:        gross,
		PlatformCents:     platform,
		OrganizerCents:    gross - platform,
		CommissionPercent: commission,
	}
}

// BoostQuote is the priced breakdown of a boost purchase.
type BoostQuote struct {
	BoostType       BoostType
	UnitPriceCents  AmountCents
	Quantity        int64
	BaseCents       AmountCents
	DiscountPercent Percent
	DiscountCents   AmountCents
	TotalCents      AmountCents
	DurationHours   int64
}

// QuoteBoost prices quantity units of a boost with the buyer's plan discount.
func QuoteBoost(price BoostPrice, quantity int64, discount Percent) (BoostQuote, error) {
	if quantity < 1 || quantity > maxBoostQuantity {
		return BoostQuote{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrInvalidQuantity, maxBoostQuantity)
	}
	if discount < 0 || int64(discount) > percentScale {
		return BoostQuote{}, fmt.Errorf("%w: %d", ErrInvalidPercent, discount)
	}
	base, err := NewAmountCents(int64(price.UnitPriceCents) * quantity)
	if err != nil {
		return BoostQuote{}, err
	}
	discountCents := percentOf(base, discount)
	return BoostQuote{
		BoostType:       price.BoostType,
		UnitPriceCents:  price.UnitPriceCents,
		Quantity:        quantity,
		BaseCents:       base,
		DiscountPercent: discount,
		DiscountCents:   discountCents,
		TotalCents:      base - discountCents,
		DurationHours:   price.DurationHours,
	}, nil
}
