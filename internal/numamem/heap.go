package numamem

import (
	"reflect"
	"unsafe"
)

// Alignment is the byte alignment of every buffer returned for pointer-free types.
const Alignment = 64

// heapAligned returns count zeroed elements from the Go heap. Pointer-free element
// types are carved from a byte slice at a 64-byte boundary; types holding pointers
// must stay GC-visible and get an ordinary make.
func heapAligned[T any](count int, pointers bool) []T {
	if pointers {
		return make([]T, count)
	}
	var zero T
	size := int(unsafe.Sizeof(zero)) * count
	if size == 0 {
		return make([]T, count)
	}
	raw := make([]byte, size+Alignment-1)
	off := 0
	if rem := int(uintptr(unsafe.Pointer(&raw[0])) % Alignment); rem != 0 {
		off = Alignment - rem
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[off])), count)
}

// hasPointers reports whether values of t contain memory the garbage collector must
// trace. Such values cannot live in memory mapped outside the Go heap.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.Slice, reflect.String:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
