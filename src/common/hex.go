package common

// IsHex reports whether s is exactly n lowercase hexadecimal characters.
func IsHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9') && !('a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// ShortID returns a prefix of a 64-character object id for log output.
func ShortID(id string) string {
	if len(id) <= 12 {
		return id
	}
	return id[:12]
}
