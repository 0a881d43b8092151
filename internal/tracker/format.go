package tracker

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"time"
)

// formatValue renders a field value for audit detail storage. Nil pointers
// map to nil (SQL NULL), scalars to their literal form, time to RFC3339, and
// anything else to JSON with a fmt fallback.
func formatValue(v reflect.Value) *string {
	if !v.IsValid() {
		return nil
	}
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.String:
		s := v.String()
		return &s
	case reflect.Bool:
		s := strconv.FormatBool(v.Bool())
		return &s
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		s := strconv.FormatInt(v.Int(), 10)
		return &s
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		s := strconv.FormatUint(v.Uint(), 10)
		return &s
	case reflect.Float32, reflect.Float64:
		s := strconv.FormatFloat(v.Float(), 'f', -1, 64)
		return &s
	}

	iface := v.Interface()
	if t, ok := iface.(time.Time); ok {
		s := t.UTC().Format(time.RFC3339Nano)
		return &s
	}
	if b, ok := iface.([]byte); ok {
		s := string(b)
		return &s
	}

	raw, err := json.Marshal(iface)
	if err != nil {
		s := fmt.Sprintf("%+v", iface)
		return &s
	}
	s := string(raw)
	return &s
}

func equalValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
