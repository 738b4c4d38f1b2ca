package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"beerstore/internal/domain/model"
	repo "beerstore/internal/repository"

	"github.com/shopspring/decimal"
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	tx          repo.TransactionManager
	now         func() time.Time
}

// DI
func NewProductUsecase(productRepo repo.ProductRepository, tx repo.TransactionManager) *ProductUsecase {
	return &ProductUsecase{
		productRepo: productRepo,
		tx:          tx,
		now:         time.Now,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, errInvalid("invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, errInvalid("invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, errInvalid("q too long")
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ProductListOutput{}, errInvalid("min_price must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ProductListOutput{}, errInvalid("max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ProductListOutput{}, errInvalid("min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, errInvalid("invalid sort")
	}

	items, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, errDB()
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, errInvalid("invalid product id")
	}

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

type AdminProductInput struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	Stock         int64
	PointsPerUnit int64
	IsActive      bool
}

func validateProductInput(in AdminProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return errInvalid("name required")
	}
	if in.Price.IsNegative() {
		return errInvalid("price must be >= 0")
	}
	if in.Price.Exponent() < -2 {
		return errInvalid("price must have at most 2 decimal places")
	}
	if in.PointsPerUnit < 0 {
		return errInvalid("points_per_unit must be >= 0")
	}
	return nil
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminProductInput) (int64, error) {
	if adminUserID <= 0 {
		return 0, errUnauthorized()
	}
	if err := validateProductInput(in); err != nil {
		return 0, err
	}
	if in.Stock < 0 {
		return 0, errInvalid("stock must be >= 0")
	}

	now := u.now()
	p, err := u.productRepo.Create(ctx, model.Product{
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Price:         in.Price,
		Stock:         in.Stock,
		PointsPerUnit: in.PointsPerUnit,
		IsActive:      in.IsActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return 0, errDB()
	}
	return p.ID, nil
}

// 在庫はここでは変えない（在庫調整APIから）
func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID int64, in AdminProductInput) error {
	if adminUserID <= 0 {
		return errUnauthorized()
	}
	if productID <= 0 {
		return errInvalid("invalid product id")
	}
	if err := validateProductInput(in); err != nil {
		return err
	}

	err := u.productRepo.Update(ctx, model.Product{
		ID:            productID,
		Name:          strings.TrimSpace(in.Name),
		Description:   in.Description,
		Price:         in.Price,
		PointsPerUnit: in.PointsPerUnit,
		IsActive:      in.IsActive,
		UpdatedAt:     u.now(),
	})
	if err == repo.ErrNotFound {
		return errProductNotFound(productID)
	}
	if err != nil {
		return errDB()
	}
	return nil
}

// 注文から参照されていても行は残る（非公開＋論理削除）
func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return errUnauthorized()
	}
	if productID <= 0 {
		return errInvalid("invalid product id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if err == repo.ErrNotFound {
		return errProductNotFound(productID)
	}
	if err != nil {
		return errDB()
	}
	return nil
}

func parseAdjustmentReason(s string) (model.AdjustmentReason, error) {
	reason := model.AdjustmentReason(strings.ToLower(strings.TrimSpace(s)))
	if !reason.Valid() {
		return "", errInvalid("reason must be one of restock, damage, correction, return, other")
	}
	return reason, nil
}

// 在庫を絶対値で設定。履歴と監査ログも同じトランザクションで残す。
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) (model.InventoryAdjustment, error) {
	if adminUserID <= 0 {
		return model.InventoryAdjustment{}, errUnauthorized()
	}
	if productID <= 0 {
		return model.InventoryAdjustment{}, errInvalid("invalid product id")
	}
	if newStock < 0 {
		return model.InventoryAdjustment{}, errInvalid("stock must be >= 0")
	}
	r, err := parseAdjustmentReason(reason)
	if err != nil {
		return model.InventoryAdjustment{}, err
	}

	var adj model.InventoryAdjustment
	err = u.tx.WithinTx(ctx, func(tx repo.TxRepos) error {
		before, err := tx.Inventory().SetStock(ctx, productID, newStock)
		if err == repo.ErrNotFound {
			return errProductNotFound(productID)
		}
		if err != nil {
			return errDB()
		}

		now := u.now()
		adj = model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: adminUserID,
			Delta:       newStock - before,
			StockAfter:  newStock,
			Reason:      r,
			CreatedAt:   now,
		}
		return u.recordAdjustment(ctx, tx, adj, before, model.AuditActionUpdateStock)
	})
	if err != nil {
		return model.InventoryAdjustment{}, err
	}
	return adj, nil
}

type AdjustStockInput struct {
	Delta  int64
	Reason string
	Note   string
}

// 差分で在庫を調整（入荷・破損など）。結果が負になるなら OUT_OF_STOCK。
func (u *ProductUsecase) AdminAdjustInventory(ctx context.Context, adminUserID int64, productID int64, in AdjustStockInput) (model.InventoryAdjustment, error) {
	if adminUserID <= 0 {
		return model.InventoryAdjustment{}, errUnauthorized()
	}
	if productID <= 0 {
		return model.InventoryAdjustment{}, errInvalid("invalid product id")
	}
	if in.Delta == 0 {
		return model.InventoryAdjustment{}, errInvalid("delta must not be 0")
	}
	r, err := parseAdjustmentReason(in.Reason)
	if err != nil {
		return model.InventoryAdjustment{}, err
	}
	note := strings.TrimSpace(in.Note)
	if len(note) > 255 {
		return model.InventoryAdjustment{}, errInvalid("note too long")
	}

	var adj model.InventoryAdjustment
	err = u.tx.WithinTx(ctx, func(tx repo.TxRepos) error {
		after, ok, err := tx.Inventory().AdjustStock(ctx, productID, in.Delta)
		if err == repo.ErrNotFound {
			return errProductNotFound(productID)
		}
		if err != nil {
			return errDB()
		}
		if !ok {
			return errOutOfStock(productID)
		}

		adj = model.InventoryAdjustment{
			ProductID:   productID,
			AdminUserID: adminUserID,
			Delta:       in.Delta,
			StockAfter:  after,
			Reason:      r,
			Note:        note,
			CreatedAt:   u.now(),
		}
		return u.recordAdjustment(ctx, tx, adj, after-in.Delta, model.AuditActionAdjustStock)
	})
	if err != nil {
		return model.InventoryAdjustment{}, err
	}
	return adj, nil
}

func (u *ProductUsecase) ListAdjustments(ctx context.Context, productID int64, limit int) ([]model.InventoryAdjustment, error) {
	if productID <= 0 {
		return nil, errInvalid("invalid product id")
	}
	if limit < 1 || limit > 200 {
		return nil, errInvalid("invalid limit")
	}

	var out []model.InventoryAdjustment
	err := u.tx.WithinTx(ctx, func(tx repo.TxRepos) error {
		adjs, err := tx.Inventory().ListAdjustments(ctx, productID, limit)
		if err != nil {
			return errDB()
		}
		out = adjs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// 履歴（差分）と監査ログ（誰が・どう変えたか）を残す
func (u *ProductUsecase) recordAdjustment(ctx context.Context, tx repo.TxRepos, adj model.InventoryAdjustment, before int64, action model.AuditAction) error {
	if err := tx.Inventory().CreateAdjustment(ctx, adj); err != nil {
		return errDB()
	}
	if err := tx.AuditLogs().Create(ctx, model.AuditLog{
		ActorUserID:  adj.AdminUserID,
		Action:       action,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   adj.ProductID,
		BeforeJSON:   fmt.Sprintf(`{"stock":%d}`, before),
		AfterJSON:    fmt.Sprintf(`{"stock":%d,"reason":"%s"}`, adj.StockAfter, adj.Reason),
		CreatedAt:    adj.CreatedAt,
	}); err != nil {
		return errDB()
	}
	return nil
}
