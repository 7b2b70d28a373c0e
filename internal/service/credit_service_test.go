package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/schemagate/internal/models"
	"github.com/GTDGit/schemagate/internal/utils"
)

func TestCreditService_CheckBalance_ProvisionsTenant(t *testing.T) {
	store := newFakeTenantStore()
	svc := NewCreditService(store, models.DefaultCredits)

	res, err := svc.CheckBalance(context.Background(), "new.myshopify.com")
	require.NoError(t, err)
	assert.True(t, res.HasCredits)
	assert.Equal(t, 10, res.Balance)
	assert.Equal(t, 10, store.credits("new.myshopify.com"))
}

func TestCreditService_CheckBalance_Empty(t *testing.T) {
	store := newFakeTenantStore()
	store.put("t1", 0, true, "")
	svc := NewCreditService(store, models.DefaultCredits)

	res, err := svc.CheckBalance(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, res.HasCredits)
	assert.Equal(t, 0, res.Balance)
}

func TestCreditService_CheckBalance_StorageError(t *testing.T) {
	store := newFakeTenantStore()
	store.failErr = errStorage
	svc := NewCreditService(store, models.DefaultCredits)

	_, err := svc.CheckBalance(context.Background(), "t1")
	assert.ErrorIs(t, err, utils.ErrLedgerIntegrity)
}

func TestCreditService_DeductCredit(t *testing.T) {
	store := newFakeTenantStore()
	store.put("t1", 2, true, "")
	svc := NewCreditService(store, models.DefaultCredits)

	res, err := svc.DeductCredit(context.Background(), "t1", 1)
	require.NoError(t, err)
	assert.Equal(t, &LedgerResult{Success: true, NewBalance: 1}, res)
}

func TestCreditService_DeductCredit_Insufficient(t *testing.T) {
	store := newFakeTenantStore()
	store.put("t1", 1, true, "")
	svc := NewCreditService(store, models.DefaultCredits)

	res, err := svc.DeductCredit(context.Background(), "t1", 2)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.NewBalance)
	assert.Equal(t, 1, store.credits("t1"))
}

func TestCreditService_DeductCredit_AbsentTenant(t *testing.T) {
	store := newFakeTenantStore()
	svc := NewCreditService(store, models.DefaultCredits)

	res, err := svc.DeductCredit(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, utils.ErrLedgerIntegrity)
	assert.Equal(t, &LedgerResult{Success: false, NewBalance: 0}, res)

	_, err = store.GetByShop(context.Background(), "ghost")
	assert.Error(t, err, "decrement must not provision a tenant")
}

func TestCreditService_DeductCredit_StorageError(t *testing.T) {
	store := newFakeTenantStore()
	store.put("t1", 5, true, "")
	store.failErr = errStorage
	svc := NewCreditService(store, models.DefaultCredits)

	res, err := svc.DeductCredit(context.Background(), "t1", 1)
	assert.ErrorIs(t, err, utils.ErrLedgerIntegrity)
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.NewBalance)
}

func TestCreditService_InvalidAmount(t *testing.T) {
	svc := NewCreditService(newFakeTenantStore(), models.DefaultCredits)

	for _, amount := range []int{0, -1} {
		_, err := svc.DeductCredit(context.Background(), "t1", amount)
		assert.ErrorIs(t, err, utils.ErrInvalidAmount)
		_, err = svc.AddCredits(context.Background(), "t1", amount)
		assert.ErrorIs(t, err, utils.ErrInvalidAmount)
	}
}

func TestCreditService_AddCredits(t *testing.T) {
	store := newFakeTenantStore()
	store.put("t1", 3, true, "")
	svc := NewCreditService(store, models.DefaultCredits)

	res, err := svc.AddCredits(context.Background(), "t1", 5)
	require.NoError(t, err)
	assert.Equal(t, &LedgerResult{Success: true, NewBalance: 8}, res)

	res, err = svc.AddCredits(context.Background(), "fresh", 5)
	require.NoError(t, err)
	assert.Equal(t, 15, res.NewBalance)
}

func TestCreditService_AddCredits_StorageError(t *testing.T) {
	store := newFakeTenantStore()
	store.failErr = errStorage
	svc := NewCreditService(store, models.DefaultCredits)

	res, err := svc.AddCredits(context.Background(), "t1", 5)
	assert.ErrorIs(t, err, utils.ErrLedgerIntegrity)
	assert.Equal(t, &LedgerResult{Success: false, NewBalance: 0}, res)
}

func TestCreditService_NeverNegative(t *testing.T) {
	store := newFakeTenantStore()
	store.put("t1", 3, true, "")
	svc := NewCreditService(store, models.DefaultCredits)

	for i := 0; i < 6; i++ {
		res, err := svc.DeductCredit(context.Background(), "t1", 1)
		require.NoError(t, err)
		assert.Equal(t, i < 3, res.Success)
		assert.GreaterOrEqual(t, res.NewBalance, 0)
	}
	assert.Equal(t, 0, store.credits("t1"))
}

func TestCreditService_ConcurrentDeductsNeverOverdraw(t *testing.T) {
	const balance, attempts = 10, 50

	store := newFakeTenantStore()
	store.put("t1", balance, true, "")
	svc := NewCreditService(store, models.DefaultCredits)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.DeductCredit(context.Background(), "t1", 1)
			if err == nil && res.Success {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(balance), succeeded.Load())
	assert.Equal(t, 0, store.credits("t1"))
}
