// Package seqnum implements wrapping u16 sequence-number arithmetic shared
// by the packet index, message-channel IDs
// and ticks. All three wrap at 2^16 and
// compare with the same signed-difference rule.
package seqnum

// WrappingDiff computes (a - b) as a signed 16-bit difference. A positive
// result means a is later than b in wrapping sequence order.
func WrappingDiff(a, b uint16) int16 {
	return int16(a - b) //nolint:gosec // intentional wraparound subtraction
}

// After reports whether a is strictly later than b in wrapping order.
func After(a, b uint16) bool {
	return WrappingDiff(a, b) > 0
}

// AfterOrEqual reports whether a is later than or equal to b in wrapping order.
func AfterOrEqual(a, b uint16) bool {
	return WrappingDiff(a, b) >= 0
}

// Before reports whether a is strictly earlier than b in wrapping order.
func Before(a, b uint16) bool {
	return WrappingDiff(a, b) < 0
}
