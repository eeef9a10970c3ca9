package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/receiving/backend/internal/domain/receiving"
)

// maxResponseSize is the maximum allowed response size from the registry API (1MB)
const maxResponseSize = 1 * 1024 * 1024

// ErrRegistryNotConfigured indicates the client was built without a base URL
var ErrRegistryNotConfigured = errors.New("registry: base URL not configured")

// Config holds track-and-trace registry client settings
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration // per-lookup deadline
	MaxRetries     int           // transient failures only
	RetryBackoff   time.Duration
	Concurrency    int // parallel lookups per batch
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrRegistryNotConfigured
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("registry: invalid base URL: %w", err)
	}
	return nil
}

// RegistryClient implements EnrichmentClient against the track-and-trace
// registry HTTP API. Each package id resolves with its own request and
// deadline; a batch fans out over a bounded worker pool so one slow id
// never serializes the rest.
type RegistryClient struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewRegistryClient creates a new registry client with the given configuration
func NewRegistryClient(cfg Config, logger *zap.Logger) (*RegistryClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}

	return &RegistryClient{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		logger: logger.Named("registry"),
	}, nil
}

// packageResponse is the registry's wire format for one package
type packageResponse struct {
	Label          string `json:"label"`
	ExpirationDate string `json:"expiration_date"`
	StrainName     string `json:"strain_name"`
	ProductName    string `json:"product_name"`
	Quantity       *int   `json:"quantity"`
	UnitOfMeasure  string `json:"unit_of_measure"`
}

// Lookup resolves each package id independently against the registry.
// The returned map always carries one entry per requested id: either
// the registry's metadata or a classified error. Batch-level errors are
// reserved for context cancellation.
func (c *RegistryClient) Lookup(ctx context.Context, packageIDs []string) (map[string]receiving.PackageEnrichment, error) {
	results := make(map[string]receiving.PackageEnrichment, len(packageIDs))
	if len(packageIDs) == 0 {
		return results, nil
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan string)
	)

	workers := c.config.Concurrency
	if workers > len(packageIDs) {
		workers = len(packageIDs)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				enrichment := c.lookupOne(ctx, id)
				mu.Lock()
				results[id] = enrichment
				mu.Unlock()
			}
		}()
	}

	for _, id := range packageIDs {
		select {
		case jobs <- id:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return nil, ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// lookupOne resolves one package id, retrying transient failures
func (c *RegistryClient) lookupOne(ctx context.Context, packageID string) receiving.PackageEnrichment {
	var lastErr *receiving.EnrichmentError

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.config.RetryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return timeoutEnrichment(packageID, ctx.Err())
			}
			c.logger.Debug("retrying registry lookup",
				zap.String("package_id", packageID),
				zap.Int("attempt", attempt),
			)
		}

		enrichment, enrichErr := c.fetch(ctx, packageID)
		if enrichErr == nil {
			return enrichment
		}
		if !enrichErr.Class.IsTransient() {
			return receiving.PackageEnrichment{PackageID: packageID, Err: enrichErr}
		}
		lastErr = enrichErr
	}

	c.logger.Warn("registry lookup exhausted retries",
		zap.String("package_id", packageID),
		zap.String("class", string(lastErr.Class)),
		zap.String("error", lastErr.Message),
	)
	return receiving.PackageEnrichment{PackageID: packageID, Err: lastErr}
}

// fetch performs one HTTP round trip for one package id
func (c *RegistryClient) fetch(ctx context.Context, packageID string) (receiving.PackageEnrichment, *receiving.EnrichmentError) {
	reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/packages/%s", c.config.BaseURL, url.PathEscape(packageID))
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return receiving.PackageEnrichment{}, &receiving.EnrichmentError{
			Class:   receiving.EnrichmentErrorUpstream,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() != nil {
			return receiving.PackageEnrichment{}, &receiving.EnrichmentError{
				Class:   receiving.EnrichmentErrorTimeout,
				Message: fmt.Sprintf("lookup exceeded %s", c.config.RequestTimeout),
			}
		}
		return receiving.PackageEnrichment{}, &receiving.EnrichmentError{
			Class:   receiving.EnrichmentErrorUpstream,
			Message: err.Error(),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return receiving.PackageEnrichment{}, &receiving.EnrichmentError{
			Class:   receiving.EnrichmentErrorUpstream,
			Message: fmt.Sprintf("failed to read response: %v", err),
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return receiving.PackageEnrichment{}, &receiving.EnrichmentError{
			Class:   receiving.EnrichmentErrorNotFound,
			Message: "package id not known to registry",
		}
	case resp.StatusCode >= 400:
		return receiving.PackageEnrichment{}, &receiving.EnrichmentError{
			Class:   receiving.EnrichmentErrorUpstream,
			Message: fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	var payload packageResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return receiving.PackageEnrichment{}, &receiving.EnrichmentError{
			Class:   receiving.EnrichmentErrorUpstream,
			Message: fmt.Sprintf("failed to parse response: %v", err),
		}
	}

	enrichment := receiving.PackageEnrichment{
		PackageID:     packageID,
		StrainName:    payload.StrainName,
		ProductName:   payload.ProductName,
		Quantity:      payload.Quantity,
		UnitOfMeasure: payload.UnitOfMeasure,
	}
	if payload.ExpirationDate != "" {
		if t, err := time.Parse("2006-01-02", payload.ExpirationDate); err == nil {
			enrichment.ExpirationDate = &t
		} else {
			c.logger.Warn("registry returned unparseable expiration date",
				zap.String("package_id", packageID),
				zap.String("value", payload.ExpirationDate),
			)
		}
	}
	return enrichment, nil
}

func timeoutEnrichment(packageID string, err error) receiving.PackageEnrichment {
	return receiving.PackageEnrichment{
		PackageID: packageID,
		Err: &receiving.EnrichmentError{
			Class:   receiving.EnrichmentErrorTimeout,
			Message: err.Error(),
		},
	}
}

// Ensure RegistryClient implements EnrichmentClient
var _ receiving.EnrichmentClient = (*RegistryClient)(nil)
