package receiving

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/receiving/backend/internal/domain/catalog"
	"github.com/receiving/backend/internal/domain/receiving"
	"github.com/receiving/backend/internal/domain/shared"
	"github.com/receiving/backend/internal/infrastructure/export"
)

// ReconciliationConfig tunes run-claim and download handling
type ReconciliationConfig struct {
	// ClaimTTL bounds how long a crashed run holds its claim
	ClaimTTL time.Duration
	// DownloadTTL is the validity window of generated download URLs
	DownloadTTL time.Duration
}

// DefaultReconciliationConfig returns sensible defaults
func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		ClaimTTL:    10 * time.Minute,
		DownloadTTL: 24 * time.Hour,
	}
}

// ReconciliationService runs the join: it pairs invoice lines with
// manifest packages, enriches them from the registry, derives pricing,
// persists the canonical records and publishes the export CSV.
type ReconciliationService struct {
	deliveryRepo   receiving.DeliveryRepository
	recordRepo     receiving.CanonicalRecordRepository
	catalogRepo    catalog.Repository
	claims         shared.RunClaimStore
	enrichment     receiving.EnrichmentClient
	storage        ExportStorage
	matcher        *receiving.Matcher
	eventPublisher shared.EventPublisher
	config         ReconciliationConfig
	logger         *zap.Logger
}

// NewReconciliationService creates a new ReconciliationService
func NewReconciliationService(
	deliveryRepo receiving.DeliveryRepository,
	recordRepo receiving.CanonicalRecordRepository,
	catalogRepo catalog.Repository,
	claims shared.RunClaimStore,
	enrichment receiving.EnrichmentClient,
	storage ExportStorage,
	config ReconciliationConfig,
	logger *zap.Logger,
) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ClaimTTL <= 0 {
		config.ClaimTTL = DefaultReconciliationConfig().ClaimTTL
	}
	if config.DownloadTTL <= 0 {
		config.DownloadTTL = DefaultReconciliationConfig().DownloadTTL
	}
	return &ReconciliationService{
		deliveryRepo: deliveryRepo,
		recordRepo:   recordRepo,
		catalogRepo:  catalogRepo,
		claims:       claims,
		enrichment:   enrichment,
		storage:      storage,
		matcher:      receiving.NewMatcher(logger.Named("matcher")),
		config:       config,
		logger:       logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *ReconciliationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// Reconcile runs one reconciliation for the delivery key. Exactly one
// run per key executes at a time: losers of the claim race get
// ErrRunConflict and coalesce onto the winner's result. An incomplete
// delivery is a silent no-op. Any mid-run failure reverts the delivery
// to COLLECTING with the error recorded so a later submission or manual
// retry can run again.
func (s *ReconciliationService) Reconcile(ctx context.Context, deliveryKey string) error {
	token, won, err := s.claims.Acquire(ctx, deliveryKey, s.config.ClaimTTL)
	if err != nil {
		return fmt.Errorf("acquire run claim: %w", err)
	}
	if !won {
		return shared.ErrRunConflict
	}
	defer func() {
		// Release must survive caller cancellation or the key stays
		// locked until the TTL expires.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.claims.Release(releaseCtx, deliveryKey, token); err != nil {
			s.logger.Warn("failed to release run claim",
				zap.String("delivery_key", deliveryKey),
				zap.Error(err),
			)
		}
	}()

	delivery, err := s.deliveryRepo.FindByKey(ctx, deliveryKey)
	if err != nil {
		return err
	}
	if delivery.IsPublished() {
		return nil
	}
	if !delivery.IsComplete() {
		s.logger.Debug("delivery not yet complete, skipping run",
			zap.String("delivery_key", deliveryKey),
		)
		return nil
	}

	if err := delivery.MarkReadyToJoin(); err != nil {
		return err
	}
	if err := s.deliveryRepo.Save(ctx, delivery); err != nil {
		return err
	}

	if err := s.run(ctx, delivery); err != nil {
		s.logger.Error("reconciliation run failed",
			zap.String("delivery_key", deliveryKey),
			zap.Error(err),
		)
		delivery.RevertToCollecting(err)
		revertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if saveErr := s.deliveryRepo.Save(revertCtx, delivery); saveErr != nil {
			s.logger.Error("failed to persist run failure",
				zap.String("delivery_key", deliveryKey),
				zap.Error(saveErr),
			)
		}
		return err
	}
	return nil
}

// run executes the join against an immutable snapshot of the current
// submissions. Superseding submissions landing mid-run surface as a
// concurrency conflict on save, never as mixed output.
func (s *ReconciliationService) run(ctx context.Context, delivery *receiving.Delivery) error {
	invoiceItems := delivery.InvoiceItems()
	packages := delivery.ManifestPackages()

	matchResult := s.matcher.Match(invoiceItems, packages)

	if err := ctx.Err(); err != nil {
		return err
	}

	enrichments, err := s.lookupEnrichment(ctx, matchResult.Pairs)
	if err != nil {
		return err
	}

	entries, err := s.catalogRepo.FindByVendor(ctx, delivery.Vendor)
	if err != nil {
		return fmt.Errorf("load vendor catalog: %w", err)
	}

	records := make([]receiving.CanonicalRecord, 0, len(matchResult.Pairs))
	for position, pair := range matchResult.Pairs {
		records = append(records, s.buildRecord(delivery, position, pair, enrichments, entries))
	}

	if err := delivery.MarkJoined(len(records)); err != nil {
		return err
	}
	if err := s.recordRepo.ReplaceForDelivery(ctx, delivery.ID, records); err != nil {
		return fmt.Errorf("persist canonical records: %w", err)
	}
	if err := s.deliveryRepo.Save(ctx, delivery); err != nil {
		return err
	}
	s.publishEvents(ctx, delivery)

	downloadRef, err := s.publishExport(ctx, delivery, records)
	if err != nil {
		return err
	}

	if err := delivery.MarkPublished(downloadRef); err != nil {
		return err
	}
	if err := s.deliveryRepo.Save(ctx, delivery); err != nil {
		return err
	}
	s.publishEvents(ctx, delivery)

	s.logger.Info("delivery reconciled and published",
		zap.String("delivery_key", delivery.KeyString),
		zap.Int("record_count", len(records)),
	)
	return nil
}

// lookupEnrichment resolves registry metadata for every matched package
// id. Lookups degrade per id: a failed id yields a flagged record, not
// a failed run.
func (s *ReconciliationService) lookupEnrichment(ctx context.Context, pairs []receiving.MatchedPair) (map[string]receiving.PackageEnrichment, error) {
	ids := make([]string, 0, len(pairs))
	seen := make(map[string]bool, len(pairs))
	for _, pair := range pairs {
		if pair.Package == nil || seen[pair.Package.PackageID] {
			continue
		}
		seen[pair.Package.PackageID] = true
		ids = append(ids, pair.Package.PackageID)
	}
	if len(ids) == 0 {
		return map[string]receiving.PackageEnrichment{}, nil
	}
	enrichments, err := s.enrichment.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("registry lookup: %w", err)
	}
	return enrichments, nil
}

// buildRecord assembles one canonical record from an invoice line, its
// matched package and whatever enrichment and catalog mapping produced.
func (s *ReconciliationService) buildRecord(delivery *receiving.Delivery, position int, pair receiving.MatchedPair, enrichments map[string]receiving.PackageEnrichment, entries []catalog.Entry) receiving.CanonicalRecord {
	packageID := ""
	var expiration *time.Time
	flags := append([]string(nil), pair.Flags...)

	if pair.Package != nil {
		packageID = pair.Package.PackageID
		expiration = pair.Package.ExpirationDate

		if enr, ok := enrichments[packageID]; ok {
			if enr.Err != nil {
				flags = append(flags, receiving.FlagEnrichmentFailed)
				s.logger.Warn("enrichment failed for package",
					zap.String("delivery_key", delivery.KeyString),
					zap.String("package_id", packageID),
					zap.String("class", string(enr.Err.Class)),
				)
			} else if expiration == nil {
				// Registry is authoritative only where the manifest is silent.
				expiration = enr.ExpirationDate
			}
		}
	}

	catalogProduct := catalog.MapProduct(pair.Invoice.ProductName, entries)
	return receiving.NewCanonicalRecord(delivery.ID, position, pair.Invoice, packageID, catalogProduct, expiration, pair.Method, flags)
}

// publishExport encodes the records as CSV, uploads them and returns
// the time-limited download reference.
func (s *ReconciliationService) publishExport(ctx context.Context, delivery *receiving.Delivery, records []receiving.CanonicalRecord) (string, error) {
	data, err := export.EncodeRecords(records)
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}

	storageKey := fmt.Sprintf("exports/%s.csv", delivery.ID)
	if err := s.storage.Upload(ctx, storageKey, data, "text/csv"); err != nil {
		return "", fmt.Errorf("upload export: %w", err)
	}

	downloadURL, _, err := s.storage.GenerateDownloadURL(ctx, storageKey, s.config.DownloadTTL)
	if err != nil {
		return "", fmt.Errorf("generate download url: %w", err)
	}
	return downloadURL, nil
}

// publishEvents publishes pending domain events. Publish failures are
// logged, not returned: the state change has already been persisted.
func (s *ReconciliationService) publishEvents(ctx context.Context, delivery *receiving.Delivery) {
	if s.eventPublisher == nil {
		delivery.ClearDomainEvents()
		return
	}
	events := delivery.GetDomainEvents()
	if len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish delivery events",
			zap.String("delivery_key", delivery.KeyString),
			zap.Error(err),
		)
	}
	delivery.ClearDomainEvents()
}
