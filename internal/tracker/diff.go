package tracker

import "reflect"

// Change is a single column delta detected between snapshot and current state.
type Change struct {
	Column Column
	Old    *string
	New    *string
}

// snapshot captures the formatted value of every persisted column.
func snapshot(meta *EntityMeta, entity interface{}) map[string]*string {
	v := reflect.ValueOf(entity).Elem()
	snap := make(map[string]*string, len(meta.Columns))
	for _, col := range meta.Columns {
		snap[col.Name] = formatValue(v.FieldByIndex(col.Index))
	}
	return snap
}

// diff compares a prior snapshot against the entity's current state and
// returns the changed columns, audited or not. Callers persist every change
// but only audited ones become detail rows.
func diff(meta *EntityMeta, before map[string]*string, entity interface{}) []Change {
	v := reflect.ValueOf(entity).Elem()
	var changes []Change
	for _, col := range meta.Columns {
		current := formatValue(v.FieldByIndex(col.Index))
		if equalValue(before[col.Name], current) {
			continue
		}
		changes = append(changes, Change{Column: col, Old: before[col.Name], New: current})
	}
	return changes
}
