// Package shipping implements the flat-rate shipping collaborator. Real
// carrier integration would replace Calculate; the checkout flow only depends
// on the Calculator func type.
package shipping

import "strings"

const (
	BasePRCents             = 1200
	BaseOutsidePRCents      = 1800
	FreeShippingPRThreshold = 15000
)

// Input carries the destination and the cart subtotal, which is needed for
// the free-shipping threshold.
type Input struct {
	Zip           string
	City          string
	State         string
	SubtotalCents int
}

// Calculator is what the checkout orchestrator depends on.
type Calculator func(in Input) int

func isParana(uf string) bool {
	return strings.ToUpper(strings.TrimSpace(uf)) == "PR"
}

// Calculate returns the shipping fee in cents. Orders inside PR ship free
// above the subtotal threshold.
func Calculate(in Input) int {
	if isParana(in.State) {
		if in.SubtotalCents >= FreeShippingPRThreshold {
			return 0
		}
		return BasePRCents
	}
	return BaseOutsidePRCents
}
