package common

// Unsigned is the set of unsigned integer types accepted by the rounding helpers.
type Unsigned interface {
	~uint | ~uint32 | ~uint64
}

// RoundUp rounds n up to the next multiple of m. A zero m returns n unchanged.
//
// Parameters:
//   - n: the value to round
//   - m: the multiple
//
// Returns:
//   - T: the smallest multiple of m that is >= n
func RoundUp[T Unsigned](n, m T) T {
	if m == 0 {
		return n
	}
	return ((n + m - 1) / m) * m
}

// CeilDiv divides n by d rounding up. A zero d returns 0.
func CeilDiv[T Unsigned](n, d T) T {
	if d == 0 {
		return 0
	}
	return (n + d - 1) / d
}
