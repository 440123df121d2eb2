package utils

// CeilDiv returns ceil(a/b) for positive b. Non-positive a yields 0.
func CeilDiv(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

