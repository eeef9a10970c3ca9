package persistence

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/receiving/backend/internal/domain/receiving"
	"github.com/receiving/backend/internal/domain/shared"
)

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func mustKey(t *testing.T) receiving.DeliveryKey {
	key, err := receiving.NewDeliveryKey("Downtown", "2026-03-14", "Green Fields", "INV-1001")
	require.NoError(t, err)
	return key
}

func TestGormDeliveryRepository_SaveAndFind(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormDeliveryRepository(db)
	ctx := context.Background()

	delivery := receiving.NewDelivery(mustKey(t))
	_, _, err := delivery.SubmitInvoice([]receiving.InvoiceLineItem{
		{ProductName: "Blue Dream 3.5g", Quantity: 10, UnitCost: decimal.NewFromFloat(15.50)},
	})
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, delivery))

	found, err := repo.FindByKey(ctx, delivery.KeyString)
	require.NoError(t, err)
	assert.Equal(t, delivery.ID, found.ID)
	assert.Equal(t, receiving.DeliveryStatusCollecting, found.Status)
	require.Len(t, found.Submissions, 1)
	require.Len(t, found.Submissions[0].InvoiceRows, 1)
	assert.Equal(t, "Blue Dream 3.5g", found.Submissions[0].InvoiceRows[0].ProductName)
}

func TestGormDeliveryRepository_FindByKey_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormDeliveryRepository(db)

	_, err := repo.FindByKey(context.Background(), "no/such/key/here")
	assert.Equal(t, shared.ErrNotFound, err)
}

func TestGormDeliveryRepository_SupersedeReplacesSubmission(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormDeliveryRepository(db)
	ctx := context.Background()

	delivery := receiving.NewDelivery(mustKey(t))
	_, _, err := delivery.SubmitInvoice([]receiving.InvoiceLineItem{
		{ProductName: "Blue Dream 3.5g", Quantity: 10, UnitCost: decimal.NewFromFloat(15.50)},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, delivery))

	loaded, err := repo.FindByKey(ctx, delivery.KeyString)
	require.NoError(t, err)

	outcome, _, err := loaded.SubmitInvoice([]receiving.InvoiceLineItem{
		{ProductName: "Blue Dream 3.5g", Quantity: 12, UnitCost: decimal.NewFromFloat(15.50)},
	})
	require.NoError(t, err)
	assert.Equal(t, receiving.SubmitOutcomeSuperseded, outcome)
	require.NoError(t, repo.Save(ctx, loaded))

	found, err := repo.FindByKey(ctx, delivery.KeyString)
	require.NoError(t, err)
	require.Len(t, found.Submissions, 1)
	assert.Equal(t, 2, found.Submissions[0].Revision)
	require.Len(t, found.Submissions[0].InvoiceRows, 1)
	assert.Equal(t, 12, found.Submissions[0].InvoiceRows[0].Quantity)
}

func TestGormDeliveryRepository_OptimisticLocking(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormDeliveryRepository(db)
	ctx := context.Background()

	delivery := receiving.NewDelivery(mustKey(t))
	require.NoError(t, repo.Save(ctx, delivery))

	first, err := repo.FindByKey(ctx, delivery.KeyString)
	require.NoError(t, err)
	second, err := repo.FindByKey(ctx, delivery.KeyString)
	require.NoError(t, err)

	_, _, err = first.SubmitInvoice([]receiving.InvoiceLineItem{
		{ProductName: "Blue Dream 3.5g", Quantity: 10, UnitCost: decimal.NewFromFloat(15.50)},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, first))

	_, _, err = second.SubmitManifest([]receiving.ManifestPackage{
		{PackageID: "1AFF01", ProductText: "Blue Dream 3.5g", Quantity: 10},
	})
	require.NoError(t, err)

	err = repo.Save(ctx, second)
	assert.Equal(t, shared.ErrConcurrencyConflict, err)
}

// A failed run reverts its in-memory copy to COLLECTING. If a corrected
// submission landed while the run held its stale copy, the revert save
// must conflict too, or it would write the pre-correction submissions
// back over the correction.
func TestGormDeliveryRepository_CorrectionSurvivesStaleRevert(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormDeliveryRepository(db)
	ctx := context.Background()

	delivery := receiving.NewDelivery(mustKey(t))
	_, _, err := delivery.SubmitInvoice([]receiving.InvoiceLineItem{
		{ProductName: "Blue Dream 3.5g", Quantity: 10, UnitCost: decimal.NewFromFloat(15.50)},
	})
	require.NoError(t, err)
	_, _, err = delivery.SubmitManifest([]receiving.ManifestPackage{
		{PackageID: "1AFF01", ProductText: "Blue Dream 3.5g", Quantity: 10},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, delivery))

	run, err := repo.FindByKey(ctx, delivery.KeyString)
	require.NoError(t, err)
	require.NoError(t, run.MarkReadyToJoin())
	require.NoError(t, repo.Save(ctx, run))

	correction, err := repo.FindByKey(ctx, delivery.KeyString)
	require.NoError(t, err)
	outcome, _, err := correction.SubmitInvoice([]receiving.InvoiceLineItem{
		{ProductName: "Blue Dream 3.5g", Quantity: 24, UnitCost: decimal.NewFromFloat(15.50)},
	})
	require.NoError(t, err)
	assert.Equal(t, receiving.SubmitOutcomeSuperseded, outcome)
	require.NoError(t, repo.Save(ctx, correction))

	require.NoError(t, run.MarkJoined(1))
	err = repo.Save(ctx, run)
	require.Equal(t, shared.ErrConcurrencyConflict, err)

	// Several local increments later the run is still a stale writer.
	run.RevertToCollecting(err)
	err = repo.Save(ctx, run)
	require.Equal(t, shared.ErrConcurrencyConflict, err)

	found, err := repo.FindByKey(ctx, delivery.KeyString)
	require.NoError(t, err)
	assert.Equal(t, receiving.DeliveryStatusCollecting, found.Status)
	items := found.InvoiceItems()
	require.Len(t, items, 1)
	assert.Equal(t, 24, items[0].Quantity)
}
