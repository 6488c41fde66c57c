package pointer

// Uint64 returns a pointer to the provided uint64 value
func Uint64(value uint64) *uint64 {
	return &value
}

// Uint64OrDefault returns the value pointed to, or defaultValue if nil
func Uint64OrDefault(value *uint64, defaultValue uint64) uint64 {
	if value != nil {
		return *value
	}
	return defaultValue
}
