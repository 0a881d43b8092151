package tracker

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// Tabler lets an entity name its backing table explicitly.
type Tabler interface {
	TableName() string
}

// Column describes one persisted struct field.
type Column struct {
	Name    string
	Index   []int
	Audited bool
}

// EntityMeta holds the mapping between an entity struct and its table.
// Columns excludes the primary key.
type EntityMeta struct {
	Type    reflect.Type
	Table   string
	PK      Column
	Columns []Column
}

const pkColumn = "id"

var metaCache sync.Map

// metaFor resolves (and caches) metadata for a pointer-to-struct entity.
// Fields are mapped through their `db` tags; `audit:"-"` keeps a field out of
// the audit detail rows while it remains persisted.
func metaFor(entity interface{}) (*EntityMeta, error) {
	if entity == nil {
		return nil, fmt.Errorf("tracker: nil entity")
	}
	t := reflect.TypeOf(entity)
	if t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("tracker: entity must be a pointer to struct, got %T", entity)
	}
	st := t.Elem()
	if cached, ok := metaCache.Load(st); ok {
		return cached.(*EntityMeta), nil
	}

	meta := &EntityMeta{Type: st}
	if tabler, ok := entity.(Tabler); ok {
		meta.Table = tabler.TableName()
	} else {
		meta.Table = snakeCase(st.Name())
	}

	for i := 0; i < st.NumField(); i++ {
		field := st.Field(i)
		if field.PkgPath != "" {
			continue
		}
		dbTag := field.Tag.Get("db")
		if dbTag == "" || dbTag == "-" {
			continue
		}
		name := strings.Split(dbTag, ",")[0]
		col := Column{
			Name:    name,
			Index:   field.Index,
			Audited: field.Tag.Get("audit") != "-",
		}
		if name == pkColumn {
			meta.PK = col
			continue
		}
		meta.Columns = append(meta.Columns, col)
	}

	if meta.PK.Name == "" {
		return nil, fmt.Errorf("tracker: entity %s has no %q column", st.Name(), pkColumn)
	}

	metaCache.Store(st, meta)
	return meta, nil
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
