package service

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/features/transaction/models"
)

func TestAppendFillsDefaults(t *testing.T) {
	l := NewLedger()
	tx := l.Append(models.Transaction{PropertyID: "7", Amount: big.NewInt(10)})

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.False(t, tx.OccurredAt.IsZero())

	got, ok := l.Get(tx.ID)
	require.True(t, ok)
	assert.Equal(t, tx, got)
}

func TestSettleOnce(t *testing.T) {
	l := NewLedger()
	tx := l.Append(models.Transaction{PropertyID: "7"})

	settled, err := l.Settle(tx.ID, models.StatusCompleted, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, settled.Status)
	assert.Equal(t, "0xabc", settled.ChainTxHash)

	_, err = l.Settle(tx.ID, models.StatusFailed, "")
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.CodeOf(err))

	got, _ := l.Get(tx.ID)
	assert.Equal(t, models.StatusCompleted, got.Status)
}

func TestSettleRejectsPendingAndUnknown(t *testing.T) {
	l := NewLedger()
	tx := l.Append(models.Transaction{})

	_, err := l.Settle(tx.ID, models.StatusPending, "")
	assert.Equal(t, apperrors.ErrCodeValidation, apperrors.CodeOf(err))

	_, err = l.Settle("missing", models.StatusCompleted, "")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(err))
}

func TestRecentNewestFirst(t *testing.T) {
	l := NewLedger()
	SeedFixtures(l, time.Now())

	recent := l.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "tx-3", recent[0].ID)
	assert.Equal(t, "tx-1", recent[1].ID)
	assert.Len(t, l.List(), 3)
}

func TestInvolving(t *testing.T) {
	l := NewLedger()
	SeedFixtures(l, time.Now())

	txs := l.Involving("0x8BA1F109551BD432803012645AC136DDD64DBA72")
	require.Len(t, txs, 1)
	assert.Equal(t, "tx-1", txs[0].ID)
}
