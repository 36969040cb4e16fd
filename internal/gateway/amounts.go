package gateway

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/betbot/crossarb/internal/domain"
)

// On-chain amounts are 1e6 fixed-point (USDC and CTF shares both use six
// decimals). The CLOB additionally caps input precision: USDC legs at two
// decimals, share legs at four. Violations come back as 400s, so amounts
// are quantized here before signing.
const (
	onchainDecimals = 6

	usdcMaxDecimals  = 2
	shareMaxDecimals = 4
)

// orderAmounts computes the maker/taker amounts in 1e6 units.
//
//	BUY:  maker = USDC spent (size*price), taker = shares received
//	SELL: maker = shares sold, taker = USDC received
//
// Share amounts round down so a sell can never exceed inventory and a buy
// never claims more shares than the spend covers.
func orderAmounts(side domain.Side, price domain.Price, size float64) (maker, taker *big.Int, err error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("size must be > 0, got %v", size)
	}
	if price.Pips <= 0 {
		return nil, nil, fmt.Errorf("price must be > 0, got %s", price)
	}

	shares := decimal.NewFromFloat(size)
	px := decimal.New(int64(price.Pips), -4)
	usdc := shares.Mul(px)

	switch side {
	case domain.SideBuy:
		makerDec := usdc.RoundUp(usdcMaxDecimals)
		takerDec := shares.RoundDown(shareMaxDecimals)
		return toUnits(makerDec), toUnits(takerDec), nil
	case domain.SideSell:
		makerDec := shares.RoundDown(shareMaxDecimals)
		takerDec := usdc.RoundDown(usdcMaxDecimals)
		return toUnits(makerDec), toUnits(takerDec), nil
	default:
		return nil, nil, fmt.Errorf("invalid side %q", side)
	}
}

func toUnits(d decimal.Decimal) *big.Int {
	return d.Shift(onchainDecimals).BigInt()
}
