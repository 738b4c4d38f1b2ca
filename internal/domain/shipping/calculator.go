// Package shipping は配送料金の見積もり（副作用なしの純粋関数）。
package shipping

import (
	"errors"
	"strconv"
	"strings"

	"beerstore/internal/domain/model"

	"github.com/shopspring/decimal"
)

var (
	ErrBelowMinimumOrder     = errors.New("below minimum order")
	ErrInvalidPostalCode     = errors.New("invalid postal code")
	ErrUnknownDeliveryMethod = errors.New("unknown delivery method")
)

// 見積もり結果
type Quote struct {
	Fee          decimal.Decimal `json:"fee"`
	ZoneLabel    string          `json:"zone_label"`
	ExtraMinutes int             `json:"extra_minutes"`
}

type Calculator struct {
	table Table
}

func NewCalculator(table Table) *Calculator {
	return &Calculator{table: table}
}

func (c *Calculator) Table() Table {
	return c.table
}

// Quote は配送方法・小計・郵便番号から送料を返す。
// pickupは常に0。homeは最低注文額未満なら ErrBelowMinimumOrder。
func (c *Calculator) Quote(method model.DeliveryMethod, subtotal decimal.Decimal, postalCode string) (Quote, error) {
	switch method {
	case model.DeliveryPickup:
		return Quote{Fee: decimal.Zero, ZoneLabel: "Pickup"}, nil
	case model.DeliveryHome:
	default:
		return Quote{}, ErrUnknownDeliveryMethod
	}

	code, err := ParsePostalCode(postalCode)
	if err != nil {
		return Quote{}, err
	}

	if subtotal.LessThan(c.table.MinimumOrder) {
		return Quote{}, ErrBelowMinimumOrder
	}

	zone := c.table.ZoneFor(code)

	//送料無料ラインを超えたらゾーン加算もなし
	if subtotal.GreaterThanOrEqual(c.table.FreeShippingThreshold) {
		return Quote{Fee: decimal.Zero, ZoneLabel: zone.Label, ExtraMinutes: zone.ExtraMinutes}, nil
	}

	return Quote{
		Fee:          c.table.BaseFee.Add(zone.Surcharge),
		ZoneLabel:    zone.Label,
		ExtraMinutes: zone.ExtraMinutes,
	}, nil
}

func ParsePostalCode(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 10 {
		return 0, ErrInvalidPostalCode
	}
	code, err := strconv.Atoi(s)
	if err != nil || code < 0 {
		return 0, ErrInvalidPostalCode
	}
	return code, nil
}
