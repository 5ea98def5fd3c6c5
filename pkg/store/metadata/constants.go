package metadata

const (
	// DefaultLimit is the default page size for type-discovery scans
	DefaultLimit = 100

	// MaxLimit is the maximum page size allowed per scan
	MaxLimit = 1000
)

// clampLimit applies the default and upper bound to a requested page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
