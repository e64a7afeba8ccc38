package consolidation

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/aristath/yieldfund/internal/events"
	"github.com/aristath/yieldfund/internal/modules/positions"
	"github.com/aristath/yieldfund/internal/modules/rates"
	testingpkg "github.com/aristath/yieldfund/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 15, 9, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time { return now.Add(-time.Duration(n) * 24 * time.Hour) }

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func setupService(t *testing.T) (*Service, *positions.Repository, *sql.DB) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "consolidation")
	t.Cleanup(cleanup)

	catalog, err := rates.Default()
	require.NoError(t, err)

	log := zerolog.New(nil).Level(zerolog.Disabled)
	repo := positions.NewRepository(db.Conn(), log)
	svc := NewService(repo, catalog, events.NewManager(log), nil, Config{Workers: 4, AmountScale: 2}, log)
	svc.SetClock(func() time.Time { return now })
	return svc, repo, db.Conn()
}

func TestImport_MergesEntriesAndSeedsIncome(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	result, err := svc.Import(ctx, []PurchaseEntry{
		{InvestorID: "inv-1", ProductID: "mining-1", Units: 40, PurchaseDate: daysAgo(10)},
		{InvestorID: "inv-1", ProductID: "funding-1", Principal: d("11000000"), PurchaseDate: daysAgo(30)},
		{InvestorID: "inv-1", ProductID: "mining-1", Units: 37, PurchaseDate: daysAgo(3)},
		{InvestorID: "inv-2", ProductID: "funding-4", Principal: d("500"), PurchaseDate: daysAgo(90)},
	})
	require.NoError(t, err)
	require.Len(t, result.Investors, 2)
	assert.Empty(t, result.Invalid)
	assert.NotEmpty(t, result.BatchID)
	assert.Equal(t, 0, result.Failed())

	inv1 := result.Investors[0]
	assert.Equal(t, "inv-1", inv1.InvestorID)
	assert.True(t, inv1.Success)
	require.Len(t, inv1.Positions, 2)

	mining, err := repo.GetByKey(ctx, "inv-1", "mining-1")
	require.NoError(t, err)
	assert.Equal(t, int64(77), mining.Units)
	// 40 units x 2 x 10 days + 37 units x 2 x 3 days
	assert.True(t, mining.AccruedIncome.Equal(d("1022")), mining.AccruedIncome.String())
	assert.Nil(t, mining.LastAccrualAt)
	assert.False(t, mining.Eligible())

	funding, err := repo.GetByKey(ctx, "inv-1", "funding-1")
	require.NoError(t, err)
	assert.True(t, funding.Principal.Equal(d("11000000")))
	assert.True(t, funding.AccruedIncome.Equal(d("550000")), funding.AccruedIncome.String())

	closed, err := repo.GetByKey(ctx, "inv-2", "funding-4")
	require.NoError(t, err)
	assert.True(t, closed.AccruedIncome.IsZero())
}

func TestImport_IsIdempotent(t *testing.T) {
	svc, repo, db := setupService(t)
	ctx := context.Background()

	batch := []PurchaseEntry{
		{InvestorID: "inv-1", ProductID: "mining-1", Units: 40, PurchaseDate: daysAgo(10), ContractSigned: true, Approved: true},
		{InvestorID: "inv-1", ProductID: "mining-1", Units: 37, PurchaseDate: daysAgo(3)},
		{InvestorID: "inv-1", ProductID: "funding-2", Principal: d("3000000"), PurchaseDate: daysAgo(45)},
	}

	_, err := svc.Import(ctx, batch)
	require.NoError(t, err)
	first, err := repo.ListByInvestor(ctx, "inv-1")
	require.NoError(t, err)

	// A later run (even on another day) must not double-accumulate or reset income.
	svc.SetClock(func() time.Time { return now.Add(48 * time.Hour) })
	second, err := svc.Import(ctx, batch)
	require.NoError(t, err)
	for _, p := range second.Investors[0].Positions {
		assert.False(t, p.Created)
	}

	again, err := repo.ListByInvestor(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, again, len(first))
	for i := range first {
		assert.Equal(t, first[i].ProductID, again[i].ProductID)
		assert.True(t, first[i].Principal.Equal(again[i].Principal))
		assert.Equal(t, first[i].Units, again[i].Units)
		assert.True(t, first[i].AccruedIncome.Equal(again[i].AccruedIncome))
		assert.Equal(t, first[i].ContractSigned, again[i].ContractSigned)
		assert.Equal(t, first[i].Approved, again[i].Approved)
	}

	// Withdrawn-from income survives a re-import.
	_, err = db.Exec(`UPDATE positions SET accrued_income = '22' WHERE investor_id = 'inv-1' AND product_id = 'mining-1'`)
	require.NoError(t, err)
	_, err = svc.Import(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, "22", testingpkg.AccruedIncome(t, db, "inv-1", "mining-1"))
}

func TestImport_SkipsAndReportsInvalidEntries(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	result, err := svc.Import(ctx, []PurchaseEntry{
		{InvestorID: "inv-1", ProductID: "Funding 1", Principal: d("1"), PurchaseDate: daysAgo(1)},
		{InvestorID: "inv-1", ProductID: "funding-99", Principal: d("1"), PurchaseDate: daysAgo(1)},
		{InvestorID: "inv-1", ProductID: "funding-1", Principal: d("-5"), PurchaseDate: daysAgo(1)},
		{InvestorID: "", ProductID: "funding-1", Principal: d("1"), PurchaseDate: daysAgo(1)},
		{InvestorID: "inv-1", ProductID: "mining-1", Units: -1, PurchaseDate: daysAgo(1)},
		{InvestorID: "inv-1", ProductID: "mining-1", Units: 1},
		{InvestorID: "inv-1", ProductID: "funding-1", Principal: d("1000"), PurchaseDate: daysAgo(1)},
	})
	require.NoError(t, err)
	require.Len(t, result.Invalid, 6)
	assert.Equal(t, 0, result.Invalid[0].Index)
	assert.Contains(t, result.Invalid[1].Reason, "unknown product")
	assert.Equal(t, 5, result.Invalid[5].Index)

	list, err := repo.ListByInvestor(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "funding-1", list[0].ProductID.String())
}

func TestImport_FutureDatedEntrySeedsNothing(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, []PurchaseEntry{
		{InvestorID: "inv-1", ProductID: "mining-1", Units: 10, PurchaseDate: now.Add(72 * time.Hour)},
	})
	require.NoError(t, err)

	pos, err := repo.GetByKey(ctx, "inv-1", "mining-1")
	require.NoError(t, err)
	assert.True(t, pos.AccruedIncome.IsZero())
}

func TestImport_FailureIsIsolatedPerInvestor(t *testing.T) {
	svc, repo, db := setupService(t)
	ctx := context.Background()

	_, err := db.Exec(`
		CREATE TRIGGER fail_broken BEFORE INSERT ON positions
		WHEN NEW.investor_id = 'broken' AND NEW.product_id = 'funding-2'
		BEGIN SELECT RAISE(ABORT, 'simulated write failure'); END;
	`)
	require.NoError(t, err)

	result, err := svc.Import(ctx, []PurchaseEntry{
		{InvestorID: "broken", ProductID: "mining-1", Units: 5, PurchaseDate: daysAgo(2)},
		{InvestorID: "broken", ProductID: "funding-2", Principal: d("100"), PurchaseDate: daysAgo(2)},
		{InvestorID: "healthy", ProductID: "mining-1", Units: 5, PurchaseDate: daysAgo(2)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed())

	assert.False(t, result.Investors[0].Success)
	assert.Contains(t, result.Investors[0].Error, "simulated write failure")
	assert.True(t, result.Investors[1].Success)

	// The failed investor's first product was rolled back with the second.
	broken, err := repo.ListByInvestor(ctx, "broken")
	require.NoError(t, err)
	assert.Empty(t, broken)

	healthy, err := repo.ListByInvestor(ctx, "healthy")
	require.NoError(t, err)
	assert.Len(t, healthy, 1)
}

func TestImport_ManyInvestorsInParallel(t *testing.T) {
	svc, repo, _ := setupService(t)
	ctx := context.Background()

	var batch []PurchaseEntry
	for i := 0; i < 25; i++ {
		id := "inv-" + string(rune('a'+i))
		batch = append(batch,
			PurchaseEntry{InvestorID: id, ProductID: "mining-1", Units: 1, PurchaseDate: daysAgo(1)},
			PurchaseEntry{InvestorID: id, ProductID: "funding-1", Principal: d("300"), PurchaseDate: daysAgo(1)},
		)
	}

	result, err := svc.Import(ctx, batch)
	require.NoError(t, err)
	assert.Len(t, result.Investors, 25)
	assert.Equal(t, 0, result.Failed())

	list, err := repo.ListByInvestor(ctx, "inv-y")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestImport_CancelledContext(t *testing.T) {
	svc, _, _ := setupService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Import(ctx, []PurchaseEntry{{InvestorID: "a", ProductID: "mining-1", PurchaseDate: daysAgo(1)}})
	assert.ErrorIs(t, err, context.Canceled)
}
