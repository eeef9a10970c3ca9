package receiving

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/receiving/backend/internal/domain/receiving"
	"github.com/receiving/backend/internal/domain/shared"
)

// IngestService records parsed source documents against deliveries and
// serves the delivery read models. Reconciliation itself runs
// asynchronously; submission only records content and returns.
type IngestService struct {
	deliveryRepo   receiving.DeliveryRepository
	recordRepo     receiving.CanonicalRecordRepository
	eventPublisher shared.EventPublisher
	logger         *zap.Logger
}

// NewIngestService creates a new IngestService
func NewIngestService(deliveryRepo receiving.DeliveryRepository, recordRepo receiving.CanonicalRecordRepository, logger *zap.Logger) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		deliveryRepo: deliveryRepo,
		recordRepo:   recordRepo,
		logger:       logger,
	}
}

// SetEventPublisher sets the event publisher for publishing domain events
func (s *IngestService) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SubmitDocument records one parsed document against the delivery the
// request's key identifies, creating the delivery on first contact.
// Identical re-delivery is a duplicate no-op; changed content for an
// already seen role supersedes the prior submission.
func (s *IngestService) SubmitDocument(ctx context.Context, req SubmitDocumentRequest) (*SubmitDocumentResponse, error) {
	key, err := receiving.NewDeliveryKey(req.Store, req.Date, req.Vendor, req.InvoiceNumber)
	if err != nil {
		return nil, err
	}

	delivery, err := s.deliveryRepo.FindByKey(ctx, key.String())
	if errors.Is(err, shared.ErrNotFound) {
		delivery = receiving.NewDelivery(key)
	} else if err != nil {
		return nil, err
	}

	var outcome receiving.SubmitOutcome
	var dropped []string
	switch receiving.DocumentRole(req.Role) {
	case receiving.DocumentRoleInvoice:
		items, convErr := toInvoiceItems(req.Lines)
		if convErr != nil {
			return nil, convErr
		}
		outcome, dropped, err = delivery.SubmitInvoice(items)
	case receiving.DocumentRoleManifest:
		packages, convErr := toManifestPackages(req.Packages)
		if convErr != nil {
			return nil, convErr
		}
		outcome, dropped, err = delivery.SubmitManifest(packages)
	default:
		return nil, shared.NewDomainError("INVALID_ROLE", "Role must be INVOICE or MANIFEST")
	}
	if err != nil {
		return nil, err
	}

	for _, name := range dropped {
		s.logger.Warn("dropped malformed row from submission",
			zap.String("delivery_key", delivery.KeyString),
			zap.String("role", req.Role),
			zap.String("row", name),
		)
	}

	if outcome != receiving.SubmitOutcomeDuplicate {
		if err := s.deliveryRepo.Save(ctx, delivery); err != nil {
			return nil, err
		}
		s.publishEvents(ctx, delivery)
	}

	return &SubmitDocumentResponse{
		DeliveryKey: delivery.KeyString,
		Status:      delivery.Status.String(),
		Outcome:     string(outcome),
		Dropped:     dropped,
		Complete:    delivery.IsComplete(),
	}, nil
}

// GetDelivery returns one delivery by its canonical key
func (s *IngestService) GetDelivery(ctx context.Context, key string) (*DeliveryResponse, error) {
	delivery, err := s.deliveryRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	resp := ToDeliveryResponse(delivery)
	return &resp, nil
}

// ListDeliveries returns deliveries matching the filter
func (s *IngestService) ListDeliveries(ctx context.Context, filter shared.Filter) ([]DeliveryResponse, error) {
	deliveries, err := s.deliveryRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	responses := make([]DeliveryResponse, len(deliveries))
	for i := range deliveries {
		responses[i] = ToDeliveryResponse(&deliveries[i])
	}
	return responses, nil
}

// ListDeliveriesByStatus returns deliveries in one lifecycle status
func (s *IngestService) ListDeliveriesByStatus(ctx context.Context, status receiving.DeliveryStatus, filter shared.Filter) ([]DeliveryResponse, error) {
	if !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "Unknown delivery status")
	}
	deliveries, err := s.deliveryRepo.FindByStatus(ctx, status, filter)
	if err != nil {
		return nil, err
	}
	responses := make([]DeliveryResponse, len(deliveries))
	for i := range deliveries {
		responses[i] = ToDeliveryResponse(&deliveries[i])
	}
	return responses, nil
}

// GetRecords returns the canonical records of one delivery in invoice order
func (s *IngestService) GetRecords(ctx context.Context, key string) ([]RecordResponse, error) {
	delivery, err := s.deliveryRepo.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	records, err := s.recordRepo.FindByDelivery(ctx, delivery.ID)
	if err != nil {
		return nil, err
	}
	responses := make([]RecordResponse, len(records))
	for i, record := range records {
		responses[i] = ToRecordResponse(record)
	}
	return responses, nil
}

// publishEvents publishes pending domain events. Publish failures are
// logged, not returned: the state change has already been persisted.
func (s *IngestService) publishEvents(ctx context.Context, delivery *receiving.Delivery) {
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

func toInvoiceItems(lines []InvoiceLineRequest) ([]receiving.InvoiceLineItem, error) {
	items := make([]receiving.InvoiceLineItem, len(lines))
	for i, line := range lines {
		items[i] = receiving.InvoiceLineItem{
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitCost:    line.UnitCost,
		}
	}
	return items, nil
}

func toManifestPackages(rows []ManifestPackageRequest) ([]receiving.ManifestPackage, error) {
	packages := make([]receiving.ManifestPackage, len(rows))
	for i, row := range rows {
		var expiration *time.Time
		if row.ExpirationDate != "" {
			parsed, err := time.Parse("2006-01-02", row.ExpirationDate)
			if err != nil {
				return nil, shared.NewDomainError("INVALID_EXPIRATION", "Expiration date must be YYYY-MM-DD")
			}
			expiration = &parsed
		}
		packages[i] = receiving.ManifestPackage{
			PackageID:      row.PackageID,
			ProductText:    row.ProductText,
			Quantity:       row.Quantity,
			ExpirationDate: expiration,
		}
	}
	return packages, nil
}
