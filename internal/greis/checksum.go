package greis

// Checksum computes the 16-bit transport checksum over words: the two's
// complement of their sum. A word sequence with its checksum appended sums
// to zero, so Checksum over such a sequence returns 0.
func Checksum(words []uint16) uint16 {
	var sum uint16
	for _, w := range words {
		sum += w
	}
	return ^sum + 1
}

// ChecksumBytes is Checksum over b interpreted as little-endian words.
// A trailing odd byte is ignored.
func ChecksumBytes(b []byte) uint16 {
	var sum uint16
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint16(b[i]) | uint16(b[i+1])<<8
	}
	return ^sum + 1
}

// Verify reports whether words ends with a valid checksum of the words
// before it.
func Verify(words []uint16) bool {
	if len(words) == 0 {
		return false
	}
	return Checksum(words[:len(words)-1]) == words[len(words)-1]
}
