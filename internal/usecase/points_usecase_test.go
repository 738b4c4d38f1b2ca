package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"beerstore/internal/domain/model"
	"beerstore/internal/infra/cache"
	repo "beerstore/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockBalanceCache struct {
	mock.Mock
}

func (m *mockBalanceCache) GetBalance(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBalanceCache) SetBalance(ctx context.Context, userID int64, balance int64) error {
	args := m.Called(ctx, userID, balance)
	return args.Error(0)
}

func (m *mockBalanceCache) InvalidateBalance(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func newPointsUsecase(s *memStore, c cache.BalanceCache) *PointsUsecase {
	uc := NewPointsUsecase(s, c, zap.NewNop())
	uc.now = func() time.Time { return fixedTime }
	return uc
}

func TestPointsPolicy(t *testing.T) {
	p := DefaultPointsPolicy()

	assert.Equal(t, int64(92), p.Earned(dec("18.48")))
	assert.Equal(t, int64(0), p.Earned(dec("0.19")))
	assert.Equal(t, int64(500), p.Earned(dec("100")))

	assert.True(t, dec("1").Equal(p.Discount(100)))
	assert.True(t, dec("2.55").Equal(p.Discount(255)))
}

func TestBalance_CacheHit(t *testing.T) {
	s := newMemStore()
	c := new(mockBalanceCache)
	c.On("GetBalance", mock.Anything, int64(1)).Return(int64(777), nil)

	bal, err := newPointsUsecase(s, c).Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(777), bal)
	c.AssertNotCalled(t, "SetBalance", mock.Anything, mock.Anything, mock.Anything)
}

func TestBalance_CacheMissReadsLedgerAndFills(t *testing.T) {
	s := newMemStore()
	s.grant(1, 120)
	c := new(mockBalanceCache)
	c.On("GetBalance", mock.Anything, int64(1)).Return(int64(0), cache.ErrCacheMiss)
	c.On("SetBalance", mock.Anything, int64(1), int64(120)).Return(nil)

	bal, err := newPointsUsecase(s, c).Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(120), bal)
	c.AssertExpectations(t)
}

func TestBalance_CacheErrorFallsBackToLedger(t *testing.T) {
	s := newMemStore()
	s.grant(1, 40)
	c := new(mockBalanceCache)
	c.On("GetBalance", mock.Anything, int64(1)).Return(int64(0), errors.New("connection refused"))
	c.On("SetBalance", mock.Anything, int64(1), int64(40)).Return(errors.New("connection refused"))

	bal, err := newPointsUsecase(s, c).Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(40), bal)
}

func TestSummary_NewestFirst(t *testing.T) {
	s := newMemStore()
	s.grant(1, 10)
	s.grant(1, 20)
	s.grant(2, 99)

	out, err := newPointsUsecase(s, cache.Noop{}).Summary(ctx, 1, 50)
	require.NoError(t, err)
	assert.Equal(t, int64(30), out.Balance)
	require.Len(t, out.History, 2)
	assert.Equal(t, int64(20), out.History[0].Amount)
}

func TestAdminAdjust_BonusAndExpire(t *testing.T) {
	s := newMemStore()
	c := new(mockBalanceCache)
	c.On("InvalidateBalance", mock.Anything, int64(5)).Return(nil)
	uc := newPointsUsecase(s, c)

	bal, err := uc.AdminAdjust(ctx, adminID, 5, AdminAdjustPointsInput{Kind: "bonus", Amount: 300, Reason: "birthday"})
	require.NoError(t, err)
	assert.Equal(t, int64(300), bal)

	bal, err = uc.AdminAdjust(ctx, adminID, 5, AdminAdjustPointsInput{Kind: "expired", Amount: 100, Reason: "yearly expiry"})
	require.NoError(t, err)
	assert.Equal(t, int64(200), bal)

	require.Len(t, s.st.audits, 2)
	assert.Equal(t, model.AuditActionAdjustPoints, s.st.audits[1].Action)
	assert.Equal(t, `{"balance":300}`, s.st.audits[1].BeforeJSON)
	c.AssertNumberOfCalls(t, "InvalidateBalance", 2)
}

// 残高を超える失効は行を書かずに拒否
func TestAdminAdjust_LedgerNeverNegative(t *testing.T) {
	s := newMemStore()
	s.grant(5, 50)
	uc := newPointsUsecase(s, cache.Noop{})

	_, err := uc.AdminAdjust(ctx, adminID, 5, AdminAdjustPointsInput{Kind: "expired", Amount: 51, Reason: "oops"})
	assertCode(t, err, http.StatusConflict, CodeInsufficientPoints)

	assert.Equal(t, int64(50), s.balance(5))
	assert.Len(t, s.st.points, 1)
	assert.Empty(t, s.st.audits)
}

func TestAdminAdjust_Validation(t *testing.T) {
	uc := newPointsUsecase(newMemStore(), cache.Noop{})

	_, err := uc.AdminAdjust(ctx, adminID, 5, AdminAdjustPointsInput{Kind: "earned", Amount: 10, Reason: "x"})
	assertCode(t, err, http.StatusBadRequest, CodeInvalidArgument)
	_, err = uc.AdminAdjust(ctx, adminID, 5, AdminAdjustPointsInput{Kind: "bonus", Amount: 0, Reason: "x"})
	assertCode(t, err, http.StatusBadRequest, CodeInvalidArgument)
	_, err = uc.AdminAdjust(ctx, adminID, 5, AdminAdjustPointsInput{Kind: "bonus", Amount: 10, Reason: " "})
	assertCode(t, err, http.StatusBadRequest, CodeInvalidArgument)
	_, err = uc.AdminAdjust(ctx, 0, 5, AdminAdjustPointsInput{Kind: "bonus", Amount: 10, Reason: "x"})
	assertCode(t, err, http.StatusUnauthorized, CodeUnauthorized)
}

// 同時に複数の利用が来ても、通るのは残高の範囲だけ
func TestDebitPoints_ConcurrentRedemptions(t *testing.T) {
	s := newMemStore()
	s.grant(1, 250)

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			errs <- s.WithinTx(ctx, func(r repo.TxRepos) error {
				_, err := debitPoints(ctx, r, model.PointsTransaction{UserID: 1, Kind: model.PointsUsed, Amount: 100, Reason: "test"})
				return err
			})
		}()
	}

	var ok int
	for i := 0; i < 4; i++ {
		if <-errs == nil {
			ok++
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, int64(50), s.balance(1))
}
