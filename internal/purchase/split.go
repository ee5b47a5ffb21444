package purchase

import (
	"github.com/shopspring/decimal"

	"github.com/soyHouston256/stream-sales-sub004/internal/ledger"
	"github.com/soyHouston256/stream-sales-sub004/internal/model"
)

// ComputeSplit divides price between provider, platform and affiliate.
// The commission is rounded to cents and the provider gets the rest, so the
// legs always add up to price exactly. The affiliate share is carved out of
// the commission and never exceeds it.
func ComputeSplit(price, rate, affiliateRate decimal.Decimal, withAffiliate bool) model.Split {
	commission := ledger.Round2(price.Mul(rate))
	affiliate := decimal.Zero
	if withAffiliate {
		affiliate = decimal.Min(ledger.Round2(price.Mul(affiliateRate)), commission)
	}
	return model.Split{
		Price:     price,
		Provider:  price.Sub(commission),
		Platform:  commission.Sub(affiliate),
		Affiliate: affiliate,
	}
}
