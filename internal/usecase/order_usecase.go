package usecase

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"beerstore/internal/domain/model"
	"beerstore/internal/domain/shipping"
	"beerstore/internal/infra/cache"
	repo "beerstore/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 通知サービスへの受け渡し。失敗しても呼び出し元には返さない。
type Notifier interface {
	Notify(ctx context.Context, ev model.OrderEvent)
}

type OrderUsecase struct {
	tx       repo.TransactionManager
	shipping *shipping.Calculator
	policy   PointsPolicy
	balances cache.BalanceCache
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewOrderUsecase(
	tx repo.TransactionManager,
	calc *shipping.Calculator,
	policy PointsPolicy,
	balances cache.BalanceCache,
	notifier Notifier,
	log *zap.Logger,
) *OrderUsecase {
	return &OrderUsecase{
		tx:       tx,
		shipping: calc,
		policy:   policy,
		balances: balances,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

type CheckoutInput struct {
	DeliveryMethod string
	PaymentMethod  string
	PostalCode     string
	PointsToRedeem int64
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type OrderOutput struct {
	ID             int64             `json:"id"`
	UserID         int64             `json:"user_id"`
	Status         string            `json:"status"`
	Subtotal       decimal.Decimal   `json:"subtotal"`
	Discount       decimal.Decimal   `json:"discount"`
	ShippingFee    decimal.Decimal   `json:"shipping_fee"`
	Total          decimal.Decimal   `json:"total"`
	PointsUsed     int64             `json:"points_used"`
	PointsEarned   int64             `json:"points_earned"`
	BonusPoints    int64             `json:"bonus_points"`
	PaymentMethod  string            `json:"payment_method"`
	DeliveryMethod string            `json:"delivery_method"`
	PostalCode     string            `json:"postal_code,omitempty"`
	ZoneLabel      string            `json:"zone_label,omitempty"`
	CourierID      *int64            `json:"courier_id"`
	CreatedAt      time.Time         `json:"created_at"`
	Items          []OrderItemOutput `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// 入力チェックだけ（DBに触る前に弾く）
func (u *OrderUsecase) validateCheckout(in CheckoutInput) (model.DeliveryMethod, model.PaymentMethod, error) {
	delivery := model.DeliveryMethod(strings.TrimSpace(in.DeliveryMethod))
	if delivery != model.DeliveryPickup && delivery != model.DeliveryHome {
		return "", "", newCodedError(http.StatusBadRequest, CodeInvalidDeliveryMethod, "invalid delivery_method")
	}
	payment := model.PaymentMethod(strings.TrimSpace(in.PaymentMethod))
	if !payment.Valid() {
		return "", "", newCodedError(http.StatusBadRequest, CodeInvalidPaymentMethod, "invalid payment_method")
	}
	if in.PointsToRedeem < 0 {
		return "", "", errInvalid("points_to_redeem must be >= 0")
	}
	if in.PointsToRedeem > 0 && in.PointsToRedeem < u.policy.MinRedemption {
		return "", "", newCodedError(http.StatusBadRequest, CodeBelowMinimumRedemption, "points_to_redeem below minimum")
	}
	return delivery, payment, nil
}

func shippingError(err error) error {
	switch {
	case errors.Is(err, shipping.ErrBelowMinimumOrder):
		return newCodedError(http.StatusUnprocessableEntity, CodeBelowMinimumOrder, "subtotal below minimum order for home delivery")
	case errors.Is(err, shipping.ErrInvalidPostalCode):
		return newCodedError(http.StatusBadRequest, CodeInvalidPostalCode, "invalid postal_code")
	case errors.Is(err, shipping.ErrUnknownDeliveryMethod):
		return newCodedError(http.StatusBadRequest, CodeInvalidDeliveryMethod, "invalid delivery_method")
	}
	return errDB()
}

// Checkout はカートを注文に確定する。
// 在庫・ポイント・注文・カートは1トランザクションで、途中で失敗したら何も残らない。
func (u *OrderUsecase) Checkout(ctx context.Context, userID int64, in CheckoutInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, errUnauthorized()
	}
	delivery, payment, err := u.validateCheckout(in)
	if err != nil {
		return OrderOutput{}, err
	}

	var out OrderOutput

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//読んだ明細が削除までに書き換わらないようロックする
		lines, err := r.Carts().ListByUserIDForUpdate(ctx, userID)
		if err != nil {
			return errDB()
		}
		if len(lines) == 0 {
			return errEmptyCart()
		}
		//ロック順を固定（同時チェックアウトでのデッドロック防止）
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

		ids := make([]int64, 0, len(lines))
		for _, l := range lines {
			ids = append(ids, l.ProductID)
		}
		products, err := r.Products().FindByIDs(ctx, ids)
		if err != nil {
			return errDB()
		}
		byID := make(map[int64]model.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		//価格は注文時点の現在価格で確定
		subtotal := decimal.Zero
		var bonus int64
		items := make([]model.OrderItem, 0, len(lines))
		lineIDs := make([]int64, 0, len(lines))
		for _, l := range lines {
			p, ok := byID[l.ProductID]
			if !ok || !p.IsActive {
				return errProductNotFound(l.ProductID)
			}
			lineTotal := p.Price.Mul(decimal.NewFromInt(l.Quantity)).Round(2)
			subtotal = subtotal.Add(lineTotal)
			bonus += p.PointsPerUnit * l.Quantity
			items = append(items, model.OrderItem{
				ProductID:           p.ID,
				ProductNameSnapshot: p.Name,
				UnitPriceSnapshot:   p.Price,
				Quantity:            l.Quantity,
				Subtotal:            lineTotal,
			})
			lineIDs = append(lineIDs, l.ID)
		}

		quote, err := u.shipping.Quote(delivery, subtotal, in.PostalCode)
		if err != nil {
			return shippingError(err)
		}

		discount := decimal.Zero
		if in.PointsToRedeem > 0 {
			discount = u.policy.Discount(in.PointsToRedeem)
			if discount.GreaterThan(subtotal) {
				return newCodedError(http.StatusUnprocessableEntity, CodeRedemptionExceedsSubtotal, "discount exceeds subtotal")
			}
			//残高チェックは在庫より先（行はorder_id確定後に追記）
			if err := r.Points().LockUser(ctx, userID); err != nil {
				return errDB()
			}
			bal, err := r.Points().Balance(ctx, userID)
			if err != nil {
				return errDB()
			}
			if bal < in.PointsToRedeem {
				return errInsufficientPoints()
			}
		}

		for _, it := range items {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return errDB()
			}
			if !ok {
				return errOutOfStock(it.ProductID)
			}
		}

		now := u.now()
		order := model.Order{
			UserID:         userID,
			Status:         model.OrderStatusPending,
			Subtotal:       subtotal,
			Discount:       discount,
			ShippingFee:    quote.Fee,
			Total:          subtotal.Sub(discount).Add(quote.Fee),
			PointsUsed:     in.PointsToRedeem,
			PointsEarned:   u.policy.Earned(subtotal),
			BonusPoints:    bonus,
			PaymentMethod:  payment,
			DeliveryMethod: delivery,
			ZoneLabel:      quote.ZoneLabel,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if delivery == model.DeliveryHome {
			order.PostalCode = strings.TrimSpace(in.PostalCode)
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return errDB()
		}
		order.ID = orderID
		for i := range items {
			items[i].OrderID = orderID
			items[i].CreatedAt = now
		}
		if err := r.OrderItems().CreateBulk(ctx, orderID, items); err != nil {
			return errDB()
		}

		if order.PointsUsed > 0 {
			if _, err := debitPoints(ctx, r, model.PointsTransaction{
				UserID: userID, Kind: model.PointsUsed, Amount: order.PointsUsed,
				Reason: reasonOrderRedeemed, OrderID: &orderID, CreatedAt: now,
			}); err != nil {
				return asUsecaseError(err)
			}
		}
		if order.PointsEarned > 0 {
			if err := creditPoints(ctx, r, model.PointsTransaction{
				UserID: userID, Kind: model.PointsEarned, Amount: order.PointsEarned,
				Reason: reasonOrderEarned, OrderID: &orderID, CreatedAt: now,
			}); err != nil {
				return errDB()
			}
		}
		if order.BonusPoints > 0 {
			if err := creditPoints(ctx, r, model.PointsTransaction{
				UserID: userID, Kind: model.PointsBonus, Amount: order.BonusPoints,
				Reason: reasonOrderBonus, OrderID: &orderID, CreatedAt: now,
			}); err != nil {
				return errDB()
			}
		}

		//注文に含めた明細だけ消す
		if err := r.Carts().DeleteByIDs(ctx, userID, lineIDs); err != nil {
			return errDB()
		}

		out = toOrderOutput(order, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}

	//ここからはコミット後（失敗しても注文は有効）
	if err := u.balances.InvalidateBalance(ctx, userID); err != nil {
		u.log.Warn("balance cache invalidate failed", zap.Int64("user_id", userID), zap.Error(err))
	}
	u.notifier.Notify(ctx, model.OrderEvent{
		ID:         uuid.NewString(),
		Type:       model.EventOrderCreated,
		OrderID:    out.ID,
		UserID:     userID,
		Status:     model.OrderStatusPending,
		Total:      out.Total.StringFixed(2),
		OccurredAt: out.CreatedAt,
	})

	return out, nil
}

// 配送料の見積もり（カートに触らない）
func (u *OrderUsecase) QuoteShipping(deliveryMethod string, subtotal decimal.Decimal, postalCode string) (shipping.Quote, error) {
	delivery := model.DeliveryMethod(strings.TrimSpace(deliveryMethod))
	if subtotal.IsNegative() {
		return shipping.Quote{}, errInvalid("subtotal must be >= 0")
	}
	q, err := u.shipping.Quote(delivery, subtotal, postalCode)
	if err != nil {
		return shipping.Quote{}, shippingError(err)
	}
	return q, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page int, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, errUnauthorized()
	}
	if page < 1 {
		return OrderListOutput{}, errInvalid("invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderListOutput{}, errInvalid("invalid limit")
	}

	out := OrderListOutput{Page: page, Limit: limit}
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return errDB()
		}
		outs, err := withItems(ctx, r, orders)
		if err != nil {
			return err
		}
		out.Items = outs
		out.Total = total
		return nil
	})
	if err != nil {
		return OrderListOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, errUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, errInvalid("invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return errOrderNotFound()
		}
		if err != nil {
			return errDB()
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return errOrderNotFound()
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return errDB()
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 明細はまとめて1クエリで取る
func withItems(ctx context.Context, r repo.TxRepos, orders []model.Order) ([]OrderOutput, error) {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	items, err := r.OrderItems().ListByOrderIDs(ctx, ids)
	if err != nil {
		return nil, errDB()
	}
	byOrder := make(map[int64][]model.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o, byOrder[o.ID]))
	}
	return outs, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal,
		})
	}

	return OrderOutput{
		ID:             o.ID,
		UserID:         o.UserID,
		Status:         string(o.Status),
		Subtotal:       o.Subtotal,
		Discount:       o.Discount,
		ShippingFee:    o.ShippingFee,
		Total:          o.Total,
		PointsUsed:     o.PointsUsed,
		PointsEarned:   o.PointsEarned,
		BonusPoints:    o.BonusPoints,
		PaymentMethod:  string(o.PaymentMethod),
		DeliveryMethod: string(o.DeliveryMethod),
		PostalCode:     o.PostalCode,
		ZoneLabel:      o.ZoneLabel,
		CourierID:      o.CourierID,
		CreatedAt:      o.CreatedAt,
		Items:          outItems,
	}
}
