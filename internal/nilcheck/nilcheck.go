// Package nilcheck detects nil values hiding behind non-nil interfaces.
package nilcheck

import "reflect"

// IsNil reports whether value is nil, including typed-nil interfaces such
// as a nil *T stored in a non-nil interface variable.
func IsNil(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)

	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return rv.IsNil()
	default:
		return false
	}
}
