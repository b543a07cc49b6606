package services

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yeremiapane/restaurant-orders/lifecycle"
	"github.com/yeremiapane/restaurant-orders/models"
	"github.com/yeremiapane/restaurant-orders/utils"
)

// Pricing menghitung subtotal, VAT, ongkir dan total dengan decimal
type Pricing struct {
	VATRate     decimal.Decimal
	DeliveryFee decimal.Decimal
}

func NewPricing(vatRate, deliveryFee string) (Pricing, error) {
	rate, err := decimal.NewFromString(vatRate)
	if err != nil {
		return Pricing{}, fmt.Errorf("parse VAT rate %q: %w", vatRate, err)
	}
	if rate.IsNegative() {
		return Pricing{}, fmt.Errorf("VAT rate must not be negative")
	}
	fee, err := decimal.NewFromString(deliveryFee)
	if err != nil {
		return Pricing{}, fmt.Errorf("parse delivery fee %q: %w", deliveryFee, err)
	}
	return Pricing{VATRate: rate, DeliveryFee: fee}, nil
}

// Apply fills lineTotal on every item and the order totals.
// totalAmount == subtotal + vat + deliveryFee holds on the rounded values.
func (p Pricing) Apply(o *models.Order) {
	subtotal := decimal.Zero
	for i := range o.Items {
		line := decimal.NewFromFloat(o.Items[i].UnitPrice).Mul(decimal.NewFromInt(int64(o.Items[i].Quantity))).Round(2)
		o.Items[i].LineTotal = utils.Money(line)
		subtotal = subtotal.Add(line)
	}

	vat := subtotal.Mul(p.VATRate).Round(2)
	fee := decimal.Zero
	if o.ServiceType == lifecycle.ServiceDelivery {
		fee = p.DeliveryFee.Round(2)
	}

	o.Subtotal = utils.Money(subtotal)
	o.VAT = utils.Money(vat)
	o.DeliveryFee = utils.Money(fee)
	o.TotalAmount = utils.Money(subtotal.Add(vat).Add(fee))
}
