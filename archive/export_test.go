package archive

// SetZstdAvailableForTest forces the zstdAvailable fallback path for tests.
func SetZstdAvailableForTest(v bool) {
	zstdAvailable = v
}
