package usecase

import (
	"context"

	"beerstore/internal/domain/model"
	repo "beerstore/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジック。
// 在庫はここでは確定させない（チェックアウト時に再チェック）。
type CartUsecase struct {
	cartRepo    repo.CartRepository
	productRepo repo.ProductRepository
}

func NewCartUsecase(cartRepo repo.CartRepository, productRepo repo.ProductRepository) *CartUsecase {
	return &CartUsecase{
		cartRepo:    cartRepo,
		productRepo: productRepo,
	}
}

// price は現在価格（表示時に更新）
type CartLineResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	// 数量が現在の在庫を超えている（注文時に OUT_OF_STOCK になりうる）
	StockWarning bool `json:"stock_warning"`
	// 商品が非公開・削除済み
	Unavailable bool `json:"unavailable,omitempty"`
}

type CartResponse struct {
	Items    []CartLineResponse `json:"items"`
	Subtotal decimal.Decimal    `json:"subtotal"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, errUnauthorized()
	}
	return u.buildCartResponse(ctx, userID)
}

// 同一商品は数量加算。qty <= 0 は削除と同じ。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, errUnauthorized()
	}
	if in.ProductID <= 0 {
		return CartResponse{}, errInvalid("invalid product_id")
	}
	if in.Quantity <= 0 {
		return u.RemoveLine(ctx, userID, in.ProductID)
	}

	p, err := u.activeProduct(ctx, in.ProductID)
	if err != nil {
		return CartResponse{}, err
	}

	//加算はDB側で1文（ON CONFLICT）なので連打でも取りこぼさない
	if _, err := u.cartRepo.AddQuantity(ctx, userID, in.ProductID, in.Quantity, p.Price); err != nil {
		return CartResponse{}, errDB()
	}
	return u.buildCartResponse(ctx, userID)
}

// 数量を上書き。qty <= 0 は削除と同じ。
func (u *CartUsecase) SetQuantity(ctx context.Context, userID int64, productID int64, qty int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, errUnauthorized()
	}
	if productID <= 0 {
		return CartResponse{}, errInvalid("invalid product_id")
	}
	if qty <= 0 {
		return u.RemoveLine(ctx, userID, productID)
	}

	p, err := u.activeProduct(ctx, productID)
	if err != nil {
		return CartResponse{}, err
	}

	if _, err := u.cartRepo.SetQuantity(ctx, userID, productID, qty, p.Price); err != nil {
		return CartResponse{}, errDB()
	}
	return u.buildCartResponse(ctx, userID)
}

// 無い明細の削除もエラーにしない
func (u *CartUsecase) RemoveLine(ctx context.Context, userID int64, productID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, errUnauthorized()
	}
	if productID <= 0 {
		return CartResponse{}, errInvalid("invalid product_id")
	}

	if err := u.cartRepo.Delete(ctx, userID, productID); err != nil && err != repo.ErrNotFound {
		return CartResponse{}, errDB()
	}
	return u.buildCartResponse(ctx, userID)
}

// ログアウト時など
func (u *CartUsecase) Clear(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return errUnauthorized()
	}
	if err := u.cartRepo.ClearByUserID(ctx, userID); err != nil {
		return errDB()
	}
	return nil
}

func (u *CartUsecase) activeProduct(ctx context.Context, productID int64) (model.Product, error) {
	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return model.Product{}, errProductNotFound(productID)
	}
	if err != nil {
		return model.Product{}, errDB()
	}
	if !p.IsActive {
		return model.Product{}, errProductNotFound(productID)
	}
	return p, nil
}

func (u *CartUsecase) buildCartResponse(ctx context.Context, userID int64) (CartResponse, error) {
	lines, err := u.cartRepo.ListByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, errDB()
	}

	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	products, err := u.productRepo.FindByIDs(ctx, ids)
	if err != nil {
		return CartResponse{}, errDB()
	}
	byID := make(map[int64]model.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	out := CartResponse{Items: make([]CartLineResponse, 0, len(lines)), Subtotal: decimal.Zero}
	for _, l := range lines {
		item := CartLineResponse{
			ID:        l.ID,
			ProductID: l.ProductID,
			Price:     l.UnitPriceSnapshot,
			Quantity:  l.Quantity,
		}

		p, ok := byID[l.ProductID]
		if !ok || !p.IsActive {
			//注文できないので小計には含めない
			item.Unavailable = true
			item.Subtotal = decimal.Zero
			out.Items = append(out.Items, item)
			continue
		}

		item.Name = p.Name
		item.Price = p.Price
		item.Subtotal = p.Price.Mul(decimal.NewFromInt(l.Quantity))
		item.StockWarning = l.Quantity > p.Stock
		out.Subtotal = out.Subtotal.Add(item.Subtotal)
		out.Items = append(out.Items, item)
	}
	return out, nil
}
