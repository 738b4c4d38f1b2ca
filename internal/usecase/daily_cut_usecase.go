package usecase

import (
	"context"
	"sort"
	"strings"
	"time"

	"beerstore/internal/domain/model"
	repo "beerstore/internal/repository"

	"github.com/shopspring/decimal"
)

type DailyCutTotals struct {
	OrderCount        int             `json:"order_count"`
	CancelledCount    int             `json:"cancelled_count"`
	Revenue           decimal.Decimal `json:"revenue"`
	Subtotal          decimal.Decimal `json:"subtotal"`
	Discount          decimal.Decimal `json:"discount"`
	ShippingFees      decimal.Decimal `json:"shipping_fees"`
	UniqueCustomers   int             `json:"unique_customers"`
	AverageOrderValue decimal.Decimal `json:"average_order_value"`
	PointsUsed        int64           `json:"points_used"`
	PointsEarned      int64           `json:"points_earned"`
}

type HourlySales struct {
	Hour       int             `json:"hour"`
	OrderCount int             `json:"order_count"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type ProductSales struct {
	ProductID  int64           `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   int64           `json:"quantity"`
	OrderCount int             `json:"order_count"`
	Revenue    decimal.Decimal `json:"revenue"`
}

type PaymentMethodSales struct {
	PaymentMethod string          `json:"payment_method"`
	OrderCount    int             `json:"order_count"`
	Revenue       decimal.Decimal `json:"revenue"`
}

type DailyCutOrder struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	CreatedAt     time.Time       `json:"created_at"`
}

type DailyCutReport struct {
	Date           string               `json:"date"`
	Timezone       string               `json:"timezone"`
	From           time.Time            `json:"from"`
	To             time.Time            `json:"to"`
	Totals         DailyCutTotals       `json:"totals"`
	Hourly         []HourlySales        `json:"hourly"`
	Products       []ProductSales       `json:"products"`
	PaymentMethods []PaymentMethodSales `json:"payment_methods"`
	Orders         []DailyCutOrder      `json:"orders"`
}

type DailyCutUsecase struct {
	tx  repo.TransactionManager
	loc *time.Location
	now func() time.Time
}

func NewDailyCutUsecase(tx repo.TransactionManager, loc *time.Location) *DailyCutUsecase {
	return &DailyCutUsecase{tx: tx, loc: loc, now: time.Now}
}

// date は "2006-01-02"（店舗のタイムゾーン）。空なら今日。
func (u *DailyCutUsecase) Report(ctx context.Context, date string) (DailyCutReport, error) {
	var day time.Time
	if strings.TrimSpace(date) == "" {
		n := u.now().In(u.loc)
		day = time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, u.loc)
	} else {
		d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(date), u.loc)
		if err != nil {
			return DailyCutReport{}, errInvalid("date must be YYYY-MM-DD")
		}
		day = d
	}
	from := day
	to := day.AddDate(0, 0, 1)

	var (
		orders []model.Order
		items  []model.OrderItem
	)
	//注文と明細を同じスナップショットで読む
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		found, err := r.Orders().ListCreatedBetween(ctx, from, to)
		if err != nil {
			return errDB()
		}
		ids := make([]int64, 0, len(found))
		for _, o := range found {
			ids = append(ids, o.ID)
		}
		its, err := r.OrderItems().ListByOrderIDs(ctx, ids)
		if err != nil {
			return errDB()
		}
		orders, items = found, its
		return nil
	})
	if err != nil {
		return DailyCutReport{}, err
	}

	report := BuildDailyCut(orders, items, u.loc)
	report.Date = day.Format("2006-01-02")
	report.Timezone = u.loc.String()
	report.From = from
	report.To = to
	return report, nil
}

// BuildDailyCut は注文と明細だけから日次締めを組み立てる（副作用なし）。
// キャンセル済みは件数だけ数え、売上には含めない。
// 商品別売上は値引きを明細の小計比で按分し、Σ商品売上 = Σ(小計 - 値引き) になる。
func BuildDailyCut(orders []model.Order, items []model.OrderItem, loc *time.Location) DailyCutReport {
	totals := DailyCutTotals{
		Revenue:           decimal.Zero,
		Subtotal:          decimal.Zero,
		Discount:          decimal.Zero,
		ShippingFees:      decimal.Zero,
		AverageOrderValue: decimal.Zero,
	}
	hourly := make([]HourlySales, 24)
	for h := range hourly {
		hourly[h] = HourlySales{Hour: h, Revenue: decimal.Zero}
	}

	included := make(map[int64]model.Order, len(orders))
	customers := make(map[int64]struct{})
	payments := make(map[string]*PaymentMethodSales)
	list := make([]DailyCutOrder, 0, len(orders))

	sorted := make([]model.Order, len(orders))
	copy(sorted, orders)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, o := range sorted {
		list = append(list, DailyCutOrder{
			ID:            o.ID,
			UserID:        o.UserID,
			Status:        string(o.Status),
			PaymentMethod: string(o.PaymentMethod),
			Total:         o.Total,
			CreatedAt:     o.CreatedAt.In(loc),
		})
		if o.Status == model.OrderStatusCancelled {
			totals.CancelledCount++
			continue
		}

		included[o.ID] = o
		customers[o.UserID] = struct{}{}
		totals.OrderCount++
		totals.Revenue = totals.Revenue.Add(o.Total)
		totals.Subtotal = totals.Subtotal.Add(o.Subtotal)
		totals.Discount = totals.Discount.Add(o.Discount)
		totals.ShippingFees = totals.ShippingFees.Add(o.ShippingFee)
		totals.PointsUsed += o.PointsUsed
		totals.PointsEarned += o.PointsEarned

		h := o.CreatedAt.In(loc).Hour()
		hourly[h].OrderCount++
		hourly[h].Revenue = hourly[h].Revenue.Add(o.Total)

		pm := string(o.PaymentMethod)
		ps, ok := payments[pm]
		if !ok {
			ps = &PaymentMethodSales{PaymentMethod: pm, Revenue: decimal.Zero}
			payments[pm] = ps
		}
		ps.OrderCount++
		ps.Revenue = ps.Revenue.Add(o.Total)
	}
	totals.UniqueCustomers = len(customers)
	if totals.OrderCount > 0 {
		totals.AverageOrderValue = totals.Revenue.Div(decimal.NewFromInt(int64(totals.OrderCount))).Round(2)
	}

	byOrder := make(map[int64][]model.OrderItem)
	for _, it := range items {
		if _, ok := included[it.OrderID]; ok {
			byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
		}
	}

	products := make(map[int64]*ProductSales)
	for orderID, its := range byOrder {
		sort.Slice(its, func(i, j int) bool { return its[i].ID < its[j].ID })
		alloc := allocateDiscount(included[orderID], its)

		seen := make(map[int64]bool, len(its))
		for i, it := range its {
			ps, ok := products[it.ProductID]
			if !ok {
				ps = &ProductSales{ProductID: it.ProductID, Name: it.ProductNameSnapshot, Revenue: decimal.Zero}
				products[it.ProductID] = ps
			}
			ps.Quantity += it.Quantity
			ps.Revenue = ps.Revenue.Add(it.Subtotal.Sub(alloc[i]))
			if !seen[it.ProductID] {
				seen[it.ProductID] = true
				ps.OrderCount++
			}
		}
	}

	productList := make([]ProductSales, 0, len(products))
	for _, ps := range products {
		productList = append(productList, *ps)
	}
	sort.Slice(productList, func(i, j int) bool {
		if c := productList[i].Revenue.Cmp(productList[j].Revenue); c != 0 {
			return c > 0
		}
		return productList[i].ProductID < productList[j].ProductID
	})

	paymentList := make([]PaymentMethodSales, 0, len(payments))
	for _, ps := range payments {
		paymentList = append(paymentList, *ps)
	}
	sort.Slice(paymentList, func(i, j int) bool { return paymentList[i].PaymentMethod < paymentList[j].PaymentMethod })

	return DailyCutReport{
		Totals:         totals,
		Hourly:         hourly,
		Products:       productList,
		PaymentMethods: paymentList,
		Orders:         list,
	}
}

// 値引きを明細小計の比率で按分する。
// 各明細は1セント未満を切り捨て、余りのセントは切り捨て幅の大きい明細から1セントずつ配る。
// どの明細も自分の小計を超えない（値引き <= 注文小計 が前提）。
func allocateDiscount(o model.Order, items []model.OrderItem) []decimal.Decimal {
	out := make([]decimal.Decimal, len(items))
	for i := range out {
		out[i] = decimal.Zero
	}
	if o.Discount.IsZero() || o.Subtotal.IsZero() || len(items) == 0 {
		return out
	}

	cent := decimal.New(1, -2)
	frac := make([]decimal.Decimal, len(items))
	rest := o.Discount
	for i, it := range items {
		exact := o.Discount.Mul(it.Subtotal).Div(o.Subtotal)
		share := exact.Truncate(2)
		if share.GreaterThan(it.Subtotal) {
			share = it.Subtotal
		}
		out[i] = share
		frac[i] = exact.Sub(share)
		rest = rest.Sub(share)
	}

	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	//同じ端数なら後ろの明細を優先
	sort.SliceStable(order, func(a, b int) bool {
		fa, fb := frac[order[a]], frac[order[b]]
		if !fa.Equal(fb) {
			return fa.GreaterThan(fb)
		}
		return order[a] > order[b]
	})

	for rest.GreaterThanOrEqual(cent) {
		given := false
		for _, i := range order {
			if rest.LessThan(cent) {
				break
			}
			if out[i].Add(cent).GreaterThan(items[i].Subtotal) {
				continue
			}
			out[i] = out[i].Add(cent)
			rest = rest.Sub(cent)
			given = true
		}
		if !given {
			break
		}
	}
	return out
}
