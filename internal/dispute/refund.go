package dispute

import (
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/ledger"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

var hundred = decimal.NewFromInt(100)

// Refund is the compensating movement for one resolution: Buyer is credited,
// and the three legs are debited from the wallets that were paid by the sale.
// Provider + Platform + Affiliate always equals Buyer.
type Refund struct {
	Buyer     decimal.Decimal
	Provider  decimal.Decimal
	Platform  decimal.Decimal
	Affiliate decimal.Decimal
}

func (r Refund) IsZero() bool {
	return r.Buyer.IsZero()
}

// FullRefund reverses every credit leg of the purchase.
func FullRefund(p model.Purchase) Refund {
	return Refund{
		Buyer:     p.Amount,
		Provider:  p.ProviderEarnings,
		Platform:  p.PlatformCommission,
		Affiliate: p.AffiliateCommission,
	}
}

// PartialRefund returns pct percent of the price to the buyer. Provider and
// affiliate legs are taken proportionally and the platform leg absorbs the
// rounding remainder.
func PartialRefund(p model.Purchase, pct decimal.Decimal) Refund {
	share := pct.Div(hundred)
	r := Refund{
		Buyer:     ledger.Round2(p.Amount.Mul(share)),
		Provider:  ledger.Round2(p.ProviderEarnings.Mul(share)),
		Affiliate: ledger.Round2(p.AffiliateCommission.Mul(share)),
	}
	r.Platform = r.Buyer.Sub(r.Provider).Sub(r.Affiliate)
	if r.Platform.IsNegative() {
		r.Provider = r.Provider.Add(r.Platform)
		r.Platform = decimal.Zero
	}
	return r
}
