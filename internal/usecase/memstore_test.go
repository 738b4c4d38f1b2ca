package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"beerstore/internal/domain/model"
	repo "beerstore/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// テスト用のインメモリDB。WithinTxはエラー時にスナップショットへ戻す。
type memState struct {
	seq         int64
	products    map[int64]model.Product
	cart        []model.CartLine
	orders      map[int64]model.Order
	items       []model.OrderItem
	points      []model.PointsTransaction
	couriers    map[int64]model.Courier
	pings       []model.CourierPing
	adjustments []model.InventoryAdjustment
	audits      []model.AuditLog
}

func (s *memState) clone() *memState {
	c := *s
	c.products = make(map[int64]model.Product, len(s.products))
	for k, v := range s.products {
		c.products[k] = v
	}
	c.orders = make(map[int64]model.Order, len(s.orders))
	for k, v := range s.orders {
		c.orders[k] = v
	}
	c.couriers = make(map[int64]model.Courier, len(s.couriers))
	for k, v := range s.couriers {
		c.couriers[k] = v
	}
	c.cart = append([]model.CartLine(nil), s.cart...)
	c.items = append([]model.OrderItem(nil), s.items...)
	c.points = append([]model.PointsTransaction(nil), s.points...)
	c.pings = append([]model.CourierPing(nil), s.pings...)
	c.adjustments = append([]model.InventoryAdjustment(nil), s.adjustments...)
	c.audits = append([]model.AuditLog(nil), s.audits...)
	return &c
}

type memStore struct {
	mu sync.Mutex
	st *memState

	// 失敗注入
	failCreateItems bool
	failAudit       bool

	// ロック付きで読んだ回数
	lockedCartReads int
}

func newMemStore() *memStore {
	return &memStore{st: &memState{
		products: map[int64]model.Product{},
		orders:   map[int64]model.Order{},
		couriers: map[int64]model.Courier{},
	}}
}

func (s *memStore) nextID() int64 {
	s.st.seq++
	return s.st.seq
}

func (s *memStore) WithinTx(_ context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	if err := fn(memRepos{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

type memRepos struct{ s *memStore }

func (r memRepos) Orders() repo.OrderRepository         { return memOrders{r.s} }
func (r memRepos) OrderItems() repo.OrderItemRepository { return memOrderItems{r.s} }
func (r memRepos) Carts() repo.CartRepository           { return memCarts{r.s} }
func (r memRepos) Inventory() repo.InventoryRepository  { return memInventory{r.s} }
func (r memRepos) Products() repo.ProductRepository     { return memProducts{r.s} }
func (r memRepos) Points() repo.PointsRepository        { return memPoints{r.s} }
func (r memRepos) Couriers() repo.CourierRepository     { return memCouriers{r.s} }
func (r memRepos) AuditLogs() repo.AuditLogRepository   { return memAudits{r.s} }

// --- fixtures

func (s *memStore) addProduct(name string, price string, stock int64, pointsPerUnit int64) model.Product {
	p := model.Product{
		ID:            s.nextID(),
		Name:          name,
		Price:         decimal.RequireFromString(price),
		Stock:         stock,
		PointsPerUnit: pointsPerUnit,
		IsActive:      true,
	}
	s.st.products[p.ID] = p
	return p
}

func (s *memStore) stock(productID int64) int64 {
	return s.st.products[productID].Stock
}

func (s *memStore) balance(userID int64) int64 {
	b, _ := memPoints{s}.Balance(context.Background(), userID)
	return b
}

func (s *memStore) grant(userID int64, amount int64) {
	s.st.points = append(s.st.points, model.PointsTransaction{
		ID: s.nextID(), UserID: userID, Kind: model.PointsBonus, Amount: amount, Reason: "seed", CreatedAt: time.Now(),
	})
}

// --- products

type memProducts struct{ s *memStore }

func (r memProducts) ListPublic(_ context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	out := []model.Product{}
	for _, p := range r.s.st.products {
		if !p.IsActive || p.DeletedAt.Valid {
			continue
		}
		if q.Q != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(q.Q)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (r memProducts) FindByID(_ context.Context, id int64) (model.Product, error) {
	p, ok := r.s.st.products[id]
	if !ok || p.DeletedAt.Valid {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (r memProducts) FindByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	out := []model.Product{}
	for _, id := range ids {
		if p, err := r.FindByID(ctx, id); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r memProducts) Create(_ context.Context, p model.Product) (model.Product, error) {
	p.ID = r.s.nextID()
	r.s.st.products[p.ID] = p
	return p, nil
}

func (r memProducts) Update(_ context.Context, p model.Product) error {
	cur, ok := r.s.st.products[p.ID]
	if !ok || cur.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	cur.Name, cur.Description, cur.Price = p.Name, p.Description, p.Price
	cur.PointsPerUnit, cur.IsActive = p.PointsPerUnit, p.IsActive
	r.s.st.products[p.ID] = cur
	return nil
}

func (r memProducts) SoftDelete(_ context.Context, id int64) error {
	cur, ok := r.s.st.products[id]
	if !ok || cur.DeletedAt.Valid {
		return repo.ErrNotFound
	}
	cur.IsActive = false
	cur.DeletedAt = gorm.DeletedAt{Time: time.Now(), Valid: true}
	r.s.st.products[id] = cur
	return nil
}

// --- inventory

type memInventory struct{ s *memStore }

func (r memInventory) SetStock(_ context.Context, productID int64, newStock int64) (int64, error) {
	p, ok := r.s.st.products[productID]
	if !ok || p.DeletedAt.Valid {
		return 0, repo.ErrNotFound
	}
	before := p.Stock
	p.Stock = newStock
	r.s.st.products[productID] = p
	return before, nil
}

func (r memInventory) DecreaseStockIfEnough(_ context.Context, productID int64, qty int64) (bool, error) {
	p, ok := r.s.st.products[productID]
	if !ok || p.Stock < qty {
		return false, nil
	}
	p.Stock -= qty
	r.s.st.products[productID] = p
	return true, nil
}

func (r memInventory) IncreaseStock(_ context.Context, productID int64, qty int64) error {
	p, ok := r.s.st.products[productID]
	if !ok {
		return repo.ErrNotFound
	}
	p.Stock += qty
	r.s.st.products[productID] = p
	return nil
}

func (r memInventory) AdjustStock(_ context.Context, productID int64, delta int64) (int64, bool, error) {
	p, ok := r.s.st.products[productID]
	if !ok || p.DeletedAt.Valid {
		return 0, false, repo.ErrNotFound
	}
	if p.Stock+delta < 0 {
		return 0, false, nil
	}
	p.Stock += delta
	r.s.st.products[productID] = p
	return p.Stock, true, nil
}

func (r memInventory) CreateAdjustment(_ context.Context, adj model.InventoryAdjustment) error {
	adj.ID = r.s.nextID()
	r.s.st.adjustments = append(r.s.st.adjustments, adj)
	return nil
}

func (r memInventory) ListAdjustments(_ context.Context, productID int64, limit int) ([]model.InventoryAdjustment, error) {
	out := []model.InventoryAdjustment{}
	for i := len(r.s.st.adjustments) - 1; i >= 0 && len(out) < limit; i-- {
		if a := r.s.st.adjustments[i]; a.ProductID == productID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- cart

type memCarts struct{ s *memStore }

func (r memCarts) ListByUserID(_ context.Context, userID int64) ([]model.CartLine, error) {
	out := []model.CartLine{}
	for _, l := range r.s.st.cart {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r memCarts) ListByUserIDForUpdate(ctx context.Context, userID int64) ([]model.CartLine, error) {
	r.s.lockedCartReads++
	return r.ListByUserID(ctx, userID)
}

func (r memCarts) upsert(userID, productID, qty int64, price decimal.Decimal, add bool) model.CartLine {
	for i, l := range r.s.st.cart {
		if l.UserID == userID && l.ProductID == productID {
			if add {
				l.Quantity += qty
			} else {
				l.Quantity = qty
			}
			l.UnitPriceSnapshot = price
			r.s.st.cart[i] = l
			return l
		}
	}
	l := model.CartLine{ID: r.s.nextID(), UserID: userID, ProductID: productID, Quantity: qty, UnitPriceSnapshot: price}
	r.s.st.cart = append(r.s.st.cart, l)
	return l
}

func (r memCarts) AddQuantity(_ context.Context, userID int64, productID int64, addQty int64, price decimal.Decimal) (model.CartLine, error) {
	return r.upsert(userID, productID, addQty, price, true), nil
}

func (r memCarts) SetQuantity(_ context.Context, userID int64, productID int64, qty int64, price decimal.Decimal) (model.CartLine, error) {
	return r.upsert(userID, productID, qty, price, false), nil
}

func (r memCarts) remove(keep func(model.CartLine) bool) int {
	kept := r.s.st.cart[:0:0]
	removed := 0
	for _, l := range r.s.st.cart {
		if keep(l) {
			kept = append(kept, l)
		} else {
			removed++
		}
	}
	r.s.st.cart = kept
	return removed
}

func (r memCarts) Delete(_ context.Context, userID int64, productID int64) error {
	if r.remove(func(l model.CartLine) bool { return l.UserID != userID || l.ProductID != productID }) == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r memCarts) DeleteByIDs(_ context.Context, userID int64, lineIDs []int64) error {
	ids := map[int64]bool{}
	for _, id := range lineIDs {
		ids[id] = true
	}
	r.remove(func(l model.CartLine) bool { return l.UserID != userID || !ids[l.ID] })
	return nil
}

func (r memCarts) ClearByUserID(_ context.Context, userID int64) error {
	r.remove(func(l model.CartLine) bool { return l.UserID != userID })
	return nil
}

// --- orders

type memOrders struct{ s *memStore }

func (r memOrders) FindByID(_ context.Context, orderID int64) (model.Order, error) {
	o, ok := r.s.st.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r memOrders) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	return r.FindByID(ctx, orderID)
}

func (r memOrders) sorted(keep func(model.Order) bool) []model.Order {
	out := []model.Order{}
	for _, o := range r.s.st.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func page(orders []model.Order, p int, limit int) []model.Order {
	from := (p - 1) * limit
	if from >= len(orders) {
		return []model.Order{}
	}
	to := min(from+limit, len(orders))
	return orders[from:to]
}

func (r memOrders) ListByUserID(_ context.Context, userID int64, p int, limit int) ([]model.Order, int64, error) {
	all := r.sorted(func(o model.Order) bool { return o.UserID == userID })
	return page(all, p, limit), int64(len(all)), nil
}

func (r memOrders) Create(_ context.Context, o model.Order) (int64, error) {
	o.ID = r.s.nextID()
	r.s.st.orders[o.ID] = o
	return o.ID, nil
}

func (r memOrders) UpdateStatus(_ context.Context, orderID int64, status model.OrderStatus) error {
	o, ok := r.s.st.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.Status = status
	r.s.st.orders[orderID] = o
	return nil
}

func (r memOrders) SetCourier(_ context.Context, orderID int64, courierID *int64) error {
	o, ok := r.s.st.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.CourierID = courierID
	r.s.st.orders[orderID] = o
	return nil
}

func (r memOrders) ListAdmin(_ context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	all := r.sorted(func(o model.Order) bool {
		if f.Status != "" && string(o.Status) != f.Status {
			return false
		}
		if f.UserID != nil && o.UserID != *f.UserID {
			return false
		}
		return true
	})
	return page(all, f.Page, f.Limit), int64(len(all)), nil
}

func (r memOrders) ListCreatedBetween(_ context.Context, from time.Time, to time.Time) ([]model.Order, error) {
	return r.sorted(func(o model.Order) bool {
		return !o.CreatedAt.Before(from) && o.CreatedAt.Before(to)
	}), nil
}

// --- order items

type memOrderItems struct{ s *memStore }

func (r memOrderItems) CreateBulk(_ context.Context, orderID int64, items []model.OrderItem) error {
	if r.s.failCreateItems {
		return errors.New("insert order_items failed")
	}
	for _, it := range items {
		it.ID = r.s.nextID()
		it.OrderID = orderID
		r.s.st.items = append(r.s.st.items, it)
	}
	return nil
}

func (r memOrderItems) ListByOrderID(_ context.Context, orderID int64) ([]model.OrderItem, error) {
	out := []model.OrderItem{}
	for _, it := range r.s.st.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (r memOrderItems) ListByOrderIDs(_ context.Context, orderIDs []int64) ([]model.OrderItem, error) {
	ids := map[int64]bool{}
	for _, id := range orderIDs {
		ids[id] = true
	}
	out := []model.OrderItem{}
	for _, it := range r.s.st.items {
		if ids[it.OrderID] {
			out = append(out, it)
		}
	}
	return out, nil
}

// --- points

type memPoints struct{ s *memStore }

func (r memPoints) LockUser(context.Context, int64) error { return nil }

func (r memPoints) Balance(_ context.Context, userID int64) (int64, error) {
	var bal int64
	for _, t := range r.s.st.points {
		if t.UserID != userID {
			continue
		}
		if t.Kind.IsDebit() {
			bal -= t.Amount
		} else {
			bal += t.Amount
		}
	}
	return bal, nil
}

func (r memPoints) Append(_ context.Context, t model.PointsTransaction) (model.PointsTransaction, error) {
	t.ID = r.s.nextID()
	r.s.st.points = append(r.s.st.points, t)
	return t, nil
}

func (r memPoints) ListByUserID(_ context.Context, userID int64, limit int) ([]model.PointsTransaction, error) {
	out := []model.PointsTransaction{}
	for i := len(r.s.st.points) - 1; i >= 0 && len(out) < limit; i-- {
		if t := r.s.st.points[i]; t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

// --- couriers

type memCouriers struct{ s *memStore }

func (r memCouriers) Create(_ context.Context, c model.Courier) (model.Courier, error) {
	c.ID = r.s.nextID()
	r.s.st.couriers[c.ID] = c
	return c, nil
}

func (r memCouriers) FindByID(_ context.Context, courierID int64) (model.Courier, error) {
	c, ok := r.s.st.couriers[courierID]
	if !ok {
		return model.Courier{}, repo.ErrNotFound
	}
	return c, nil
}

func (r memCouriers) List(_ context.Context, activeOnly bool) ([]model.Courier, error) {
	out := []model.Courier{}
	for _, c := range r.s.st.couriers {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memCouriers) AppendPing(_ context.Context, p model.CourierPing) (model.CourierPing, error) {
	p.ID = r.s.nextID()
	r.s.st.pings = append(r.s.st.pings, p)
	return p, nil
}

func (r memCouriers) LatestPing(_ context.Context, courierID int64) (model.CourierPing, error) {
	var (
		latest model.CourierPing
		found  bool
	)
	for _, p := range r.s.st.pings {
		if p.CourierID == courierID && (!found || !p.CreatedAt.Before(latest.CreatedAt)) {
			latest, found = p, true
		}
	}
	if !found {
		return model.CourierPing{}, repo.ErrNotFound
	}
	return latest, nil
}

func (r memCouriers) PingsSince(_ context.Context, courierID int64, since time.Time) ([]model.CourierPing, error) {
	out := []model.CourierPing{}
	for _, p := range r.s.st.pings {
		if p.CourierID == courierID && !p.CreatedAt.Before(since) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- audit logs

type memAudits struct{ s *memStore }

func (r memAudits) Create(_ context.Context, l model.AuditLog) error {
	if r.s.failAudit {
		return errors.New("insert audit_logs failed")
	}
	l.ID = r.s.nextID()
	r.s.st.audits = append(r.s.st.audits, l)
	return nil
}

func (r memAudits) Search(_ context.Context, q repo.AuditLogQuery) ([]model.AuditLog, int64, error) {
	matched := []model.AuditLog{}
	for _, l := range r.s.st.audits {
		switch {
		case q.ActorUserID != nil && l.ActorUserID != *q.ActorUserID:
		case q.Action != "" && l.Action != q.Action:
		case q.ResourceType != "" && l.ResourceType != q.ResourceType:
		case q.ResourceID != nil && l.ResourceID != *q.ResourceID:
		case q.From != nil && l.CreatedAt.Before(*q.From):
		case q.To != nil && !l.CreatedAt.Before(*q.To):
		default:
			matched = append(matched, l)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	start := (q.Page - 1) * q.Limit
	if start >= len(matched) {
		return []model.AuditLog{}, total, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// --- notifier

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.OrderEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev model.OrderEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) all() []model.OrderEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.OrderEvent(nil), n.events...)
}
