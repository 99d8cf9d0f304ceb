package utils

// ToStringSlice converts a decoded JSON value into a string slice.
// A single string becomes a one element slice, non string entries are skipped.
func ToStringSlice(value any) []string {
	stringSlice := make([]string, 0)
	switch v := value.(type) {
	case string:
		stringSlice = append(stringSlice, v)
	case []string:
		stringSlice = append(stringSlice, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				stringSlice = append(stringSlice, s)
			}
		}
	}
	return stringSlice
}
