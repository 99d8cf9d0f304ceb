package utils

func Value[T any](v *T) T {
	if v == nil {
		return *new(T)
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// PtrOrNil returns nil for the zero value, so absent wire fields stay absent.
func PtrOrNil[T comparable](v T) *T {
	if v == *new(T) {
		return nil
	}
	return &v
}
