package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opstrail/changetrack/internal/models"
	appErrors "github.com/opstrail/changetrack/pkg/errors"
)

type auditRepoStub struct {
	logs      []models.AuditLog
	listCalls int
	purged    int64
}

func (s *auditRepoStub) List(_ context.Context, _ models.AuditLogFilter) ([]models.AuditLog, error) {
	s.listCalls++
	return s.logs, nil
}

func (s *auditRepoStub) Count(_ context.Context, _ models.AuditLogFilter) (int, error) {
	return len(s.logs), nil
}

func (s *auditRepoStub) DeleteOlderThan(_ context.Context, _ time.Time) (int64, error) {
	return s.purged, nil
}

type cacheStub struct {
	store   map[string][]byte
	flushed bool
}

func newCacheStub() *cacheStub {
	return &cacheStub{store: map[string][]byte{}}
}

func (s *cacheStub) Get(_ context.Context, key string, dest interface{}) error {
	raw, ok := s.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (s *cacheStub) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	s.store[key] = raw
	return nil
}

func (s *cacheStub) DeleteByPattern(_ context.Context, _ string) error {
	s.store = map[string][]byte{}
	s.flushed = true
	return nil
}

func sampleLogs() []models.AuditLog {
	old := "3"
	updated := "5"
	return []models.AuditLog{
		{
			ID:        "log-1",
			Action:    models.AuditActionUpdate,
			Entity:    "items",
			EntityID:  "4",
			UserName:  "alice",
			CreatedAt: time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
			Details: []models.AuditLogDetail{
				{Field: "quantity", OldValue: &old, NewValue: &updated},
			},
		},
	}
}

func TestAuditServiceListCachesPages(t *testing.T) {
	repo := &auditRepoStub{logs: sampleLogs()}
	cache := newCacheStub()
	svc := NewAuditService(repo, cache, nil, AuditServiceConfig{CacheTTL: time.Minute})

	logs, total, err := svc.List(context.Background(), models.AuditLogFilter{Entity: "items"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, 1, total)
	require.Equal(t, 1, repo.listCalls)

	// Second identical query is served from cache.
	logs, total, err = svc.List(context.Background(), models.AuditLogFilter{Entity: "items"})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, 1, total)
	require.Equal(t, 1, repo.listCalls)
}

func TestAuditServiceInvalidateCacheForcesReload(t *testing.T) {
	repo := &auditRepoStub{logs: sampleLogs()}
	cache := newCacheStub()
	svc := NewAuditService(repo, cache, nil, AuditServiceConfig{CacheTTL: time.Minute})

	_, _, err := svc.List(context.Background(), models.AuditLogFilter{})
	require.NoError(t, err)

	svc.InvalidateCache(context.Background())
	require.True(t, cache.flushed)

	_, _, err = svc.List(context.Background(), models.AuditLogFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls)
}

func TestAuditServiceListForEntityRequiresIdentity(t *testing.T) {
	svc := NewAuditService(&auditRepoStub{}, nil, nil, AuditServiceConfig{})
	_, err := svc.ListForEntity(context.Background(), "items", "")
	require.Error(t, err)
}

func TestAuditServiceExportCSV(t *testing.T) {
	repo := &auditRepoStub{logs: sampleLogs()}
	svc := NewAuditService(repo, nil, nil, AuditServiceConfig{ExportEnabled: true})

	payload, filename, err := svc.Export(context.Background(), models.AuditLogFilter{}, "csv")
	require.NoError(t, err)
	require.Contains(t, filename, ".csv")
	require.Contains(t, string(payload), "quantity")
	require.Contains(t, string(payload), "UPDATE")
}

func TestAuditServiceExportPDF(t *testing.T) {
	repo := &auditRepoStub{logs: sampleLogs()}
	svc := NewAuditService(repo, nil, nil, AuditServiceConfig{ExportEnabled: true})

	payload, filename, err := svc.Export(context.Background(), models.AuditLogFilter{}, "pdf")
	require.NoError(t, err)
	require.Contains(t, filename, ".pdf")
	require.NotEmpty(t, payload)
}

func TestAuditServiceExportDisabled(t *testing.T) {
	svc := NewAuditService(&auditRepoStub{}, nil, nil, AuditServiceConfig{ExportEnabled: false})
	_, _, err := svc.Export(context.Background(), models.AuditLogFilter{}, "csv")
	require.Error(t, err)
}

func TestAuditServiceExportUnknownFormat(t *testing.T) {
	svc := NewAuditService(&auditRepoStub{}, nil, nil, AuditServiceConfig{ExportEnabled: true})
	_, _, err := svc.Export(context.Background(), models.AuditLogFilter{}, "xlsx")
	require.Error(t, err)
}

func TestAuditServicePurge(t *testing.T) {
	repo := &auditRepoStub{purged: 42}
	cache := newCacheStub()
	svc := NewAuditService(repo, cache, nil, AuditServiceConfig{})

	removed, err := svc.Purge(context.Background(), 90*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(42), removed)
	require.True(t, cache.flushed)
}

func TestAuditServicePurgeRejectsNonPositiveAge(t *testing.T) {
	svc := NewAuditService(&auditRepoStub{}, nil, nil, AuditServiceConfig{})
	_, err := svc.Purge(context.Background(), 0)
	require.Error(t, err)
}
