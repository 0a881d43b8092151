package tracker

import (
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/opstrail/changetrack/internal/models"
)

// Factory builds sessions sharing one database, audit writer, and listener
// set. Services request a fresh session per unit of work.
type Factory struct {
	db        *sqlx.DB
	audit     AuditWriter
	logger    *zap.Logger
	enqueue   func(models.AuditLog) error
	listeners []Listener
}

// NewFactory wires the shared session dependencies.
func NewFactory(db *sqlx.DB, audit AuditWriter, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{db: db, audit: audit, logger: logger}
}

// UseAsyncAudit routes every session's post-commit audit records through fn.
func (f *Factory) UseAsyncAudit(fn func(models.AuditLog) error) {
	f.enqueue = fn
}

// OnAuditRecord registers a listener applied to every session.
func (f *Factory) OnAuditRecord(fn Listener) {
	if fn != nil {
		f.listeners = append(f.listeners, fn)
	}
}

// Session creates a unit of work carrying the factory defaults plus opts.
func (f *Factory) Session(opts ...Option) *Session {
	base := []Option{WithLogger(f.logger)}
	if f.enqueue != nil {
		base = append(base, WithAsyncAudit(f.enqueue))
	}
	for _, fn := range f.listeners {
		base = append(base, WithListener(fn))
	}
	return NewSession(f.db, f.audit, append(base, opts...)...)
}
