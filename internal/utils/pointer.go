package utils

// Ptr returns a pointer to the passed value.
func Ptr[T any](t T) *T {
	return &t
}
