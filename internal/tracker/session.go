package tracker

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/opstrail/changetrack/internal/models"
)

// EntityState describes what a session intends to do with a tracked entity.
type EntityState int

const (
	StateUnchanged EntityState = iota
	StateAdded
	StateModified
	StateDeleted
)

// AuditWriter persists audit records. Update and delete records ride inside
// the data transaction; insert records are written after commit.
type AuditWriter interface {
	InsertTx(ctx context.Context, tx *sqlx.Tx, log *models.AuditLog) error
	Insert(ctx context.Context, log *models.AuditLog) error
}

// Listener receives every audit record generated by a save.
type Listener func(models.AuditLog)

// ErrMissingActor is returned when SaveChanges is called without a user name.
var ErrMissingActor = errors.New("tracker: acting user name is required")

type entry struct {
	entity interface{}
	meta   *EntityMeta
	state  EntityState
	snap   map[string]*string
}

// Session is a unit of work over a sqlx database. Entities attached via
// Track are diffed at save time; Create and Remove mark inserts and deletes.
// A Session is not safe for concurrent use.
type Session struct {
	db        *sqlx.DB
	audit     AuditWriter
	logger    *zap.Logger
	enqueue   func(models.AuditLog) error
	requestID *string
	entries   []*entry
	listeners []Listener
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a logger for audit write failures.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAsyncAudit routes post-commit audit records through the given enqueue
// function instead of writing them inline. Accepted records count as recorded
// and fire listeners at enqueue time; retries and terminal failures are the
// queue handler's to report.
func WithAsyncAudit(enqueue func(models.AuditLog) error) Option {
	return func(s *Session) { s.enqueue = enqueue }
}

// WithRequestID stamps generated audit records with an HTTP request ID.
func WithRequestID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.requestID = &id
		}
	}
}

// WithListener registers an audit record listener.
func WithListener(fn Listener) Option {
	return func(s *Session) {
		if fn != nil {
			s.listeners = append(s.listeners, fn)
		}
	}
}

// NewSession builds a session bound to db, writing audit records through audit.
func NewSession(db *sqlx.DB, audit AuditWriter, opts ...Option) *Session {
	s := &Session{db: db, audit: audit, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// OnAuditRecord registers a listener fired once per generated audit record.
func (s *Session) OnAuditRecord(fn Listener) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}

// Track attaches an existing row and snapshots its current field values.
func (s *Session) Track(entity interface{}) error {
	meta, err := metaFor(entity)
	if err != nil {
		return err
	}
	if e := s.find(entity); e != nil {
		e.snap = snapshot(meta, entity)
		return nil
	}
	s.entries = append(s.entries, &entry{entity: entity, meta: meta, state: StateUnchanged, snap: snapshot(meta, entity)})
	return nil
}

// Create marks an entity for insertion.
func (s *Session) Create(entity interface{}) error {
	meta, err := metaFor(entity)
	if err != nil {
		return err
	}
	s.entries = append(s.entries, &entry{entity: entity, meta: meta, state: StateAdded})
	return nil
}

// Remove marks an entity for deletion. Untracked entities are snapshotted
// first so the delete audit captures their final values.
func (s *Session) Remove(entity interface{}) error {
	meta, err := metaFor(entity)
	if err != nil {
		return err
	}
	if e := s.find(entity); e != nil {
		if e.state == StateAdded {
			// Staged but never inserted: nothing to delete or audit.
			s.drop(e)
			return nil
		}
		e.state = StateDeleted
		return nil
	}
	s.entries = append(s.entries, &entry{entity: entity, meta: meta, state: StateDeleted, snap: snapshot(meta, entity)})
	return nil
}

func (s *Session) drop(target *entry) {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e != target {
			kept = append(kept, e)
		}
	}
	s.entries = kept
}

func (s *Session) find(entity interface{}) *entry {
	for _, e := range s.entries {
		if e.entity == entity {
			return e
		}
	}
	return nil
}

// Summary reports what a SaveChanges call did. In async mode an insert audit
// record counts toward AuditRecords once the queue accepts it; the queue
// handler owns the eventual write and its failure accounting.
type Summary struct {
	Created      int
	Updated      int
	Deleted      int
	AuditRecords int
}

type pendingUpdate struct {
	e       *entry
	changes []Change
}

// SaveChanges flushes the session. Updates and deletes are applied and
// audited inside one transaction. Inserts run in the same transaction with
// RETURNING to capture generated keys; their audit records are written in a
// second round-trip after the commit, so a failed audit write never rolls
// back committed data. The returned Summary is valid even when the second
// phase errors.
func (s *Session) SaveChanges(ctx context.Context, userName string) (Summary, error) {
	var summary Summary
	if strings.TrimSpace(userName) == "" {
		return summary, ErrMissingActor
	}

	var added, deleted []*entry
	var updates []pendingUpdate
	for _, e := range s.entries {
		switch e.state {
		case StateAdded:
			added = append(added, e)
		case StateDeleted:
			deleted = append(deleted, e)
		default:
			if changes := diff(e.meta, e.snap, e.entity); len(changes) > 0 {
				updates = append(updates, pendingUpdate{e: e, changes: changes})
			}
		}
	}
	if len(added) == 0 && len(deleted) == 0 && len(updates) == 0 {
		return summary, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return summary, fmt.Errorf("begin save transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var emitted []models.AuditLog

	for _, u := range updates {
		if err := s.applyUpdate(ctx, tx, u.e, u.changes); err != nil {
			return summary, err
		}
		summary.Updated++
		if log := s.buildLog(models.AuditActionUpdate, u.e, userName, auditedChanges(u.changes)); log != nil {
			if err := s.audit.InsertTx(ctx, tx, log); err != nil {
				return summary, fmt.Errorf("write update audit for %s: %w", u.e.meta.Table, err)
			}
			summary.AuditRecords++
			emitted = append(emitted, *log)
		}
	}

	for _, e := range deleted {
		if err := s.applyDelete(ctx, tx, e); err != nil {
			return summary, err
		}
		summary.Deleted++
		if log := s.buildLog(models.AuditActionDelete, e, userName, deleteChanges(e)); log != nil {
			if err := s.audit.InsertTx(ctx, tx, log); err != nil {
				return summary, fmt.Errorf("write delete audit for %s: %w", e.meta.Table, err)
			}
			summary.AuditRecords++
			emitted = append(emitted, *log)
		}
	}

	for _, e := range added {
		if err := s.applyInsert(ctx, tx, e); err != nil {
			return summary, err
		}
		summary.Created++
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("commit save transaction: %w", err)
	}
	committed = true

	// Second round-trip: generated keys are known only now.
	var auditErrs []error
	for _, e := range added {
		log := s.buildLog(models.AuditActionCreate, e, userName, insertChanges(e))
		if log == nil {
			continue
		}
		if s.enqueue != nil {
			err = s.enqueue(*log)
		} else {
			err = s.audit.Insert(ctx, log)
		}
		if err != nil {
			s.logger.Warn("insert audit record not persisted",
				zap.String("entity", log.Entity),
				zap.String("entity_id", log.EntityID),
				zap.Error(err))
			auditErrs = append(auditErrs, err)
			continue
		}
		summary.AuditRecords++
		emitted = append(emitted, *log)
	}

	for _, log := range emitted {
		for _, fn := range s.listeners {
			fn(log)
		}
	}

	s.refresh()
	return summary, errors.Join(auditErrs...)
}

// refresh re-snapshots surviving entries so an immediate second save is a no-op.
func (s *Session) refresh() {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.state == StateDeleted {
			continue
		}
		e.state = StateUnchanged
		e.snap = snapshot(e.meta, e.entity)
		kept = append(kept, e)
	}
	s.entries = kept
}

func (s *Session) applyUpdate(ctx context.Context, tx *sqlx.Tx, e *entry, changes []Change) error {
	v := reflect.ValueOf(e.entity).Elem()
	set := make([]string, 0, len(changes))
	args := make([]interface{}, 0, len(changes)+1)
	for _, ch := range changes {
		args = append(args, v.FieldByIndex(ch.Column.Index).Interface())
		set = append(set, fmt.Sprintf("%s = $%d", ch.Column.Name, len(args)))
	}
	args = append(args, v.FieldByIndex(e.meta.PK.Index).Interface())
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", e.meta.Table, strings.Join(set, ", "), e.meta.PK.Name, len(args))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update %s: %w", e.meta.Table, err)
	}
	return nil
}

func (s *Session) applyDelete(ctx context.Context, tx *sqlx.Tx, e *entry) error {
	v := reflect.ValueOf(e.entity).Elem()
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", e.meta.Table, e.meta.PK.Name)
	if _, err := tx.ExecContext(ctx, query, v.FieldByIndex(e.meta.PK.Index).Interface()); err != nil {
		return fmt.Errorf("delete from %s: %w", e.meta.Table, err)
	}
	return nil
}

func (s *Session) applyInsert(ctx context.Context, tx *sqlx.Tx, e *entry) error {
	v := reflect.ValueOf(e.entity).Elem()
	pkField := v.FieldByIndex(e.meta.PK.Index)

	cols := make([]string, 0, len(e.meta.Columns)+1)
	placeholders := make([]string, 0, len(e.meta.Columns)+1)
	args := make([]interface{}, 0, len(e.meta.Columns)+1)

	if !pkField.IsZero() {
		args = append(args, pkField.Interface())
		cols = append(cols, e.meta.PK.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	for _, col := range e.meta.Columns {
		args = append(args, v.FieldByIndex(col.Index).Interface())
		cols = append(cols, col.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", e.meta.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	if !pkField.IsZero() {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert into %s: %w", e.meta.Table, err)
		}
		return nil
	}

	query += fmt.Sprintf(" RETURNING %s", e.meta.PK.Name)
	row := tx.QueryRowContext(ctx, query, args...)
	switch pkField.Kind() {
	case reflect.Int, reflect.Int32, reflect.Int64:
		var id int64
		if err := row.Scan(&id); err != nil {
			return fmt.Errorf("insert into %s: %w", e.meta.Table, err)
		}
		pkField.SetInt(id)
	case reflect.String:
		var id string
		if err := row.Scan(&id); err != nil {
			return fmt.Errorf("insert into %s: %w", e.meta.Table, err)
		}
		pkField.SetString(id)
	default:
		return fmt.Errorf("insert into %s: unsupported primary key kind %s", e.meta.Table, pkField.Kind())
	}
	return nil
}

// buildLog assembles an audit header with detail rows. Returns nil when no
// audited column is involved.
func (s *Session) buildLog(action models.AuditAction, e *entry, userName string, details []models.AuditLogDetail) *models.AuditLog {
	if len(details) == 0 {
		return nil
	}
	v := reflect.ValueOf(e.entity).Elem()
	entityID := formatValue(v.FieldByIndex(e.meta.PK.Index))
	log := &models.AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		Entity:    e.meta.Table,
		UserName:  userName,
		RequestID: s.requestID,
		CreatedAt: time.Now().UTC(),
		Details:   details,
	}
	if entityID != nil {
		log.EntityID = *entityID
	}
	return log
}

func auditedChanges(changes []Change) []models.AuditLogDetail {
	details := make([]models.AuditLogDetail, 0, len(changes))
	for _, ch := range changes {
		if !ch.Column.Audited {
			continue
		}
		details = append(details, models.AuditLogDetail{Field: ch.Column.Name, OldValue: ch.Old, NewValue: ch.New})
	}
	return details
}

func insertChanges(e *entry) []models.AuditLogDetail {
	v := reflect.ValueOf(e.entity).Elem()
	details := make([]models.AuditLogDetail, 0, len(e.meta.Columns))
	for _, col := range e.meta.Columns {
		if !col.Audited {
			continue
		}
		details = append(details, models.AuditLogDetail{Field: col.Name, NewValue: formatValue(v.FieldByIndex(col.Index))})
	}
	return details
}

func deleteChanges(e *entry) []models.AuditLogDetail {
	details := make([]models.AuditLogDetail, 0, len(e.meta.Columns))
	for _, col := range e.meta.Columns {
		if !col.Audited {
			continue
		}
		details = append(details, models.AuditLogDetail{Field: col.Name, OldValue: e.snap[col.Name]})
	}
	return details
}
