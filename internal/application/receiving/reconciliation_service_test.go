package receiving

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/receiving/backend/internal/domain/catalog"
	"github.com/receiving/backend/internal/domain/receiving"
	"github.com/receiving/backend/internal/domain/shared"
)

// MockDeliveryRepository is a mock implementation of DeliveryRepository
type MockDeliveryRepository struct {
	mock.Mock
}

func (m *MockDeliveryRepository) FindByID(ctx context.Context, id uuid.UUID) (*receiving.Delivery, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*receiving.Delivery), args.Error(1)
}

func (m *MockDeliveryRepository) FindByKey(ctx context.Context, key string) (*receiving.Delivery, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*receiving.Delivery), args.Error(1)
}

func (m *MockDeliveryRepository) FindAll(ctx context.Context, filter shared.Filter) ([]receiving.Delivery, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]receiving.Delivery), args.Error(1)
}

func (m *MockDeliveryRepository) FindByStatus(ctx context.Context, status receiving.DeliveryStatus, filter shared.Filter) ([]receiving.Delivery, error) {
	args := m.Called(ctx, status, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]receiving.Delivery), args.Error(1)
}

func (m *MockDeliveryRepository) Save(ctx context.Context, delivery *receiving.Delivery) error {
	args := m.Called(ctx, delivery)
	return args.Error(0)
}

// MockRecordRepository is a mock implementation of CanonicalRecordRepository
type MockRecordRepository struct {
	mock.Mock
}

func (m *MockRecordRepository) FindByDelivery(ctx context.Context, deliveryID uuid.UUID) ([]receiving.CanonicalRecord, error) {
	args := m.Called(ctx, deliveryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]receiving.CanonicalRecord), args.Error(1)
}

func (m *MockRecordRepository) ReplaceForDelivery(ctx context.Context, deliveryID uuid.UUID, records []receiving.CanonicalRecord) error {
	args := m.Called(ctx, deliveryID, records)
	return args.Error(0)
}

// MockCatalogRepository is a mock implementation of catalog.Repository
type MockCatalogRepository struct {
	mock.Mock
}

func (m *MockCatalogRepository) FindByVendor(ctx context.Context, vendor string) ([]catalog.Entry, error) {
	args := m.Called(ctx, vendor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Entry), args.Error(1)
}

func (m *MockCatalogRepository) ReplaceVendorCatalog(ctx context.Context, vendor string, entries []catalog.Entry) error {
	args := m.Called(ctx, vendor, entries)
	return args.Error(0)
}

// MockClaimStore is a mock implementation of shared.RunClaimStore
type MockClaimStore struct {
	mock.Mock
}

func (m *MockClaimStore) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockClaimStore) Release(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

func (m *MockClaimStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockEnrichmentClient is a mock implementation of EnrichmentClient
type MockEnrichmentClient struct {
	mock.Mock
}

func (m *MockEnrichmentClient) Lookup(ctx context.Context, packageIDs []string) (map[string]receiving.PackageEnrichment, error) {
	args := m.Called(ctx, packageIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]receiving.PackageEnrichment), args.Error(1)
}

// MockExportStorage is a mock implementation of ExportStorage
type MockExportStorage struct {
	mock.Mock
}

func (m *MockExportStorage) EnsureBucket(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockExportStorage) Upload(ctx context.Context, storageKey string, data []byte, contentType string) error {
	args := m.Called(ctx, storageKey, data, contentType)
	return args.Error(0)
}

func (m *MockExportStorage) GenerateDownloadURL(ctx context.Context, storageKey string, expiresIn time.Duration) (string, time.Time, error) {
	args := m.Called(ctx, storageKey, expiresIn)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

type reconcileFixture struct {
	deliveryRepo *MockDeliveryRepository
	recordRepo   *MockRecordRepository
	catalogRepo  *MockCatalogRepository
	claims       *MockClaimStore
	enrichment   *MockEnrichmentClient
	storage      *MockExportStorage
	service      *ReconciliationService
}

func newReconcileFixture() *reconcileFixture {
	f := &reconcileFixture{
		deliveryRepo: new(MockDeliveryRepository),
		recordRepo:   new(MockRecordRepository),
		catalogRepo:  new(MockCatalogRepository),
		claims:       new(MockClaimStore),
		enrichment:   new(MockEnrichmentClient),
		storage:      new(MockExportStorage),
	}
	f.service = NewReconciliationService(
		f.deliveryRepo,
		f.recordRepo,
		f.catalogRepo,
		f.claims,
		f.enrichment,
		f.storage,
		ReconciliationConfig{ClaimTTL: time.Minute, DownloadTTL: time.Hour},
		nil,
	)
	return f
}

func completeDelivery(t *testing.T) *receiving.Delivery {
	t.Helper()
	key, err := receiving.NewDeliveryKey("Downtown", "2026-03-14", "Green Fields", "INV-1001")
	require.NoError(t, err)

	d := receiving.NewDelivery(key)
	_, _, err = d.SubmitInvoice([]receiving.InvoiceLineItem{
		{ProductName: "Blue Dream 3.5g", Quantity: 10, UnitCost: decimal.NewFromFloat(15.50)},
		{ProductName: "Sour Diesel 1g", Quantity: 24, UnitCost: decimal.NewFromFloat(7.25)},
	})
	require.NoError(t, err)
	_, _, err = d.SubmitManifest([]receiving.ManifestPackage{
		{PackageID: "1A01", ProductText: "Blue Dream 3.5g", Quantity: 10},
	})
	require.NoError(t, err)
	d.ClearDomainEvents()
	return d
}

func TestReconciliationService_Reconcile_HappyPath(t *testing.T) {
	f := newReconcileFixture()
	delivery := completeDelivery(t)
	key := delivery.KeyString
	ctx := context.Background()

	exp := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

	f.claims.On("Acquire", mock.Anything, key, time.Minute).Return("run-token", true, nil)
	f.claims.On("Release", mock.Anything, key, "run-token").Return(nil)
	f.deliveryRepo.On("FindByKey", mock.Anything, key).Return(delivery, nil)
	f.deliveryRepo.On("Save", mock.Anything, delivery).Return(nil)
	f.catalogRepo.On("FindByVendor", mock.Anything, "Green Fields").Return([]catalog.Entry{}, nil)
	f.enrichment.On("Lookup", mock.Anything, []string{"1A01"}).Return(map[string]receiving.PackageEnrichment{
		"1A01": {PackageID: "1A01", ExpirationDate: &exp},
	}, nil)

	var savedRecords []receiving.CanonicalRecord
	f.recordRepo.On("ReplaceForDelivery", mock.Anything, delivery.ID, mock.Anything).
		Run(func(args mock.Arguments) {
			savedRecords = args.Get(2).([]receiving.CanonicalRecord)
		}).Return(nil)

	f.storage.On("Upload", mock.Anything, "exports/"+delivery.ID.String()+".csv", mock.Anything, "text/csv").Return(nil)
	f.storage.On("GenerateDownloadURL", mock.Anything, mock.Anything, time.Hour).
		Return("https://exports.example.com/signed", time.Now().Add(time.Hour), nil)

	err := f.service.Reconcile(ctx, key)
	require.NoError(t, err)

	assert.Equal(t, receiving.DeliveryStatusPublished, delivery.Status)
	assert.Equal(t, "https://exports.example.com/signed", delivery.DownloadReference)

	require.Len(t, savedRecords, 2)
	// Matched line: enrichment fills the missing expiration
	assert.Equal(t, "1A01", savedRecords[0].PackageID)
	assert.Equal(t, receiving.MatchMethodName, savedRecords[0].MatchMethod)
	require.NotNil(t, savedRecords[0].ExpirationDate)
	assert.True(t, exp.Equal(*savedRecords[0].ExpirationDate))
	assert.True(t, savedRecords[0].PricePerUnit.Equal(decimal.NewFromFloat(38.75)))
	// Unmatched line stays visible with its flag
	assert.Empty(t, savedRecords[1].PackageID)
	assert.Contains(t, savedRecords[1].FlagList(), receiving.FlagUnmatched)

	f.claims.AssertCalled(t, "Release", mock.Anything, key, "run-token")
	f.deliveryRepo.AssertNumberOfCalls(t, "Save", 3)
}

func TestReconciliationService_Reconcile_LostClaimCoalesces(t *testing.T) {
	f := newReconcileFixture()
	key := "Downtown/2026-03-14/Green%20Fields/INV-1001"

	f.claims.On("Acquire", mock.Anything, key, time.Minute).Return("", false, nil)

	err := f.service.Reconcile(context.Background(), key)
	assert.Equal(t, shared.ErrRunConflict, err)
	f.deliveryRepo.AssertNotCalled(t, "FindByKey", mock.Anything, mock.Anything)
	f.claims.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciliationService_Reconcile_IncompleteIsNoOp(t *testing.T) {
	f := newReconcileFixture()

	key, err := receiving.NewDeliveryKey("Downtown", "2026-03-14", "Green Fields", "INV-1001")
	require.NoError(t, err)
	delivery := receiving.NewDelivery(key)
	_, _, err = delivery.SubmitInvoice([]receiving.InvoiceLineItem{
		{ProductName: "Blue Dream 3.5g", Quantity: 10, UnitCost: decimal.NewFromFloat(15.50)},
	})
	require.NoError(t, err)
	delivery.ClearDomainEvents()

	f.claims.On("Acquire", mock.Anything, delivery.KeyString, time.Minute).Return("run-token", true, nil)
	f.claims.On("Release", mock.Anything, delivery.KeyString, "run-token").Return(nil)
	f.deliveryRepo.On("FindByKey", mock.Anything, delivery.KeyString).Return(delivery, nil)

	err = f.service.Reconcile(context.Background(), delivery.KeyString)
	require.NoError(t, err)

	assert.Equal(t, receiving.DeliveryStatusCollecting, delivery.Status)
	f.deliveryRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestReconciliationService_Reconcile_EnrichmentFailureFlagsRecord(t *testing.T) {
	f := newReconcileFixture()
	delivery := completeDelivery(t)
	key := delivery.KeyString

	f.claims.On("Acquire", mock.Anything, key, time.Minute).Return("run-token", true, nil)
	f.claims.On("Release", mock.Anything, key, "run-token").Return(nil)
	f.deliveryRepo.On("FindByKey", mock.Anything, key).Return(delivery, nil)
	f.deliveryRepo.On("Save", mock.Anything, delivery).Return(nil)
	f.catalogRepo.On("FindByVendor", mock.Anything, "Green Fields").Return([]catalog.Entry{}, nil)
	f.enrichment.On("Lookup", mock.Anything, []string{"1A01"}).Return(map[string]receiving.PackageEnrichment{
		"1A01": {PackageID: "1A01", Err: &receiving.EnrichmentError{
			Class:   receiving.EnrichmentErrorNotFound,
			Message: "package not found",
		}},
	}, nil)

	var savedRecords []receiving.CanonicalRecord
	f.recordRepo.On("ReplaceForDelivery", mock.Anything, delivery.ID, mock.Anything).
		Run(func(args mock.Arguments) {
			savedRecords = args.Get(2).([]receiving.CanonicalRecord)
		}).Return(nil)
	f.storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, "text/csv").Return(nil)
	f.storage.On("GenerateDownloadURL", mock.Anything, mock.Anything, time.Hour).
		Return("https://exports.example.com/signed", time.Now().Add(time.Hour), nil)

	err := f.service.Reconcile(context.Background(), key)
	require.NoError(t, err)

	// Failed enrichment degrades to a flag, never a failed run
	assert.Equal(t, receiving.DeliveryStatusPublished, delivery.Status)
	require.Len(t, savedRecords, 2)
	assert.Contains(t, savedRecords[0].FlagList(), receiving.FlagEnrichmentFailed)
	assert.Nil(t, savedRecords[0].ExpirationDate)
}

func TestReconciliationService_Reconcile_UploadFailureReverts(t *testing.T) {
	f := newReconcileFixture()
	delivery := completeDelivery(t)
	key := delivery.KeyString

	f.claims.On("Acquire", mock.Anything, key, time.Minute).Return("run-token", true, nil)
	f.claims.On("Release", mock.Anything, key, "run-token").Return(nil)
	f.deliveryRepo.On("FindByKey", mock.Anything, key).Return(delivery, nil)
	f.deliveryRepo.On("Save", mock.Anything, delivery).Return(nil)
	f.catalogRepo.On("FindByVendor", mock.Anything, "Green Fields").Return([]catalog.Entry{}, nil)
	f.enrichment.On("Lookup", mock.Anything, []string{"1A01"}).Return(map[string]receiving.PackageEnrichment{
		"1A01": {PackageID: "1A01"},
	}, nil)
	f.recordRepo.On("ReplaceForDelivery", mock.Anything, delivery.ID, mock.Anything).Return(nil)
	f.storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, "text/csv").
		Return(errors.New("bucket unavailable"))

	err := f.service.Reconcile(context.Background(), key)
	require.Error(t, err)

	// Failed run reverts to COLLECTING so retry stays possible
	assert.Equal(t, receiving.DeliveryStatusCollecting, delivery.Status)
	assert.Contains(t, delivery.LastError, "bucket unavailable")
	f.claims.AssertCalled(t, "Release", mock.Anything, key, "run-token")
}

func TestReconciliationService_Reconcile_PublishedIsNoOp(t *testing.T) {
	f := newReconcileFixture()
	delivery := completeDelivery(t)
	require.NoError(t, delivery.MarkReadyToJoin())
	require.NoError(t, delivery.MarkJoined(2))
	require.NoError(t, delivery.MarkPublished("https://exports.example.com/x.csv"))
	delivery.ClearDomainEvents()
	key := delivery.KeyString

	f.claims.On("Acquire", mock.Anything, key, time.Minute).Return("run-token", true, nil)
	f.claims.On("Release", mock.Anything, key, "run-token").Return(nil)
	f.deliveryRepo.On("FindByKey", mock.Anything, key).Return(delivery, nil)

	err := f.service.Reconcile(context.Background(), key)
	require.NoError(t, err)
	f.deliveryRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}
