package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/opstrail/changetrack/internal/models"
	appErrors "github.com/opstrail/changetrack/pkg/errors"
	"github.com/opstrail/changetrack/pkg/export"
	"github.com/opstrail/changetrack/pkg/storage"
)

type auditLogRepository interface {
	List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, error)
	Count(ctx context.Context, filter models.AuditLogFilter) (int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type auditCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

const auditCachePrefix = "audit:logs"

type cachedAuditPage struct {
	Logs  []models.AuditLog `json:"logs"`
	Total int               `json:"total"`
}

// AuditServiceConfig tunes caching and export behavior. When ExportDir is
// set, every rendered export is also archived on disk.
type AuditServiceConfig struct {
	CacheTTL      time.Duration
	ExportEnabled bool
	ExportDir     string
}

// AuditService serves the audit query, export, and retention surface.
type AuditService struct {
	repo    auditLogRepository
	cache   auditCache
	logger  *zap.Logger
	config  AuditServiceConfig
	archive *storage.LocalStorage

	csv *export.CSVExporter
	pdf *export.PDFExporter
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo auditLogRepository, cache auditCache, logger *zap.Logger, config AuditServiceConfig) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &AuditService{
		repo:   repo,
		cache:  cache,
		logger: logger,
		config: config,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
	}
	if config.ExportDir != "" {
		archive, err := storage.NewLocalStorage(config.ExportDir)
		if err != nil {
			logger.Warn("export archive disabled", zap.Error(err))
		} else {
			svc.archive = archive
		}
	}
	return svc
}

// List returns audit records matching the filter plus the total count. Pages
// are cached; any new audit record invalidates the whole prefix.
func (s *AuditService) List(ctx context.Context, filter models.AuditLogFilter) ([]models.AuditLog, int, error) {
	key := s.cacheKey(filter)
	if s.cache != nil {
		var cached cachedAuditPage
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Logs, cached.Total, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("audit cache lookup failed", zap.Error(err))
		}
	}

	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list audit logs")
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count audit logs")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedAuditPage{Logs: logs, Total: total}, s.config.CacheTTL); err != nil {
			s.logger.Warn("audit cache store failed", zap.Error(err))
		}
	}
	return logs, total, nil
}

// ListForEntity returns the full change history of one entity row, newest
// first.
func (s *AuditService) ListForEntity(ctx context.Context, entity, entityID string) ([]models.AuditLog, error) {
	if entity == "" || entityID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entity and entity id are required")
	}
	logs, _, err := s.List(ctx, models.AuditLogFilter{Entity: entity, EntityID: entityID, Limit: 200})
	return logs, err
}

// Export renders matching audit records as CSV or PDF.
func (s *AuditService) Export(ctx context.Context, filter models.AuditLogFilter, format string) ([]byte, string, error) {
	if !s.config.ExportEnabled {
		return nil, "", appErrors.Clone(appErrors.ErrExportDisabled, "audit export is disabled")
	}

	filter.Limit = 200
	filter.Offset = 0
	logs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit logs for export")
	}

	dataset := buildAuditDataset(logs)
	stamp := time.Now().UTC().Format("20060102-150405")

	var payload []byte
	var filename string
	switch format {
	case "csv", "":
		payload, err = s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		filename = fmt.Sprintf("audit-logs-%s.csv", stamp)
	case "pdf":
		payload, err = s.pdf.Render(dataset, "Audit Trail")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		filename = fmt.Sprintf("audit-logs-%s.pdf", stamp)
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	if s.archive != nil {
		if _, err := s.archive.Save(filename, payload); err != nil {
			s.logger.Warn("failed to archive export", zap.String("filename", filename), zap.Error(err))
		}
	}
	return payload, filename, nil
}

// Purge deletes audit records older than maxAge and reports how many went.
func (s *AuditService) Purge(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "retention age must be positive")
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to purge audit logs")
	}
	if removed > 0 {
		s.InvalidateCache(ctx)
		s.logger.Info("purged audit logs",
			zap.Int64("removed", removed),
			zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

// InvalidateCache drops all cached audit pages. Wired as a tracker listener so
// fresh records become visible immediately.
func (s *AuditService) InvalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, auditCachePrefix+":*"); err != nil {
		s.logger.Warn("audit cache invalidation failed", zap.Error(err))
	}
}

func (s *AuditService) cacheKey(filter models.AuditLogFilter) string {
	from, to := "", ""
	if filter.From != nil {
		from = filter.From.UTC().Format(time.RFC3339)
	}
	if filter.To != nil {
		to = filter.To.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s:%s:%d:%d",
		auditCachePrefix, filter.Entity, filter.EntityID, filter.Action, filter.UserName, from, to, filter.Limit, filter.Offset)
}

func buildAuditDataset(logs []models.AuditLog) export.Dataset {
	headers := []string{"Timestamp", "Action", "Entity", "Entity ID", "User", "Field", "Old Value", "New Value"}
	rows := make([]map[string]string, 0, len(logs))
	for _, log := range logs {
		base := map[string]string{
			"Timestamp": log.CreatedAt.UTC().Format(time.RFC3339),
			"Action":    string(log.Action),
			"Entity":    log.Entity,
			"Entity ID": log.EntityID,
			"User":      log.UserName,
		}
		if len(log.Details) == 0 {
			rows = append(rows, base)
			continue
		}
		for _, detail := range log.Details {
			row := map[string]string{
				"Timestamp": base["Timestamp"],
				"Action":    base["Action"],
				"Entity":    base["Entity"],
				"Entity ID": base["Entity ID"],
				"User":      base["User"],
				"Field":     detail.Field,
				"Old Value": derefOr(detail.OldValue, ""),
				"New Value": derefOr(detail.NewValue, ""),
			}
			rows = append(rows, row)
		}
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func derefOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}
