// Package simhash fingerprints text for near-duplicate detection.
//
// The load simulator's fixture recorder uses it to skip recording
// responses that differ only in small volatile fragments left over
// after scrubbing.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Fingerprint computes a 64-bit SimHash over case-folded word tokens
// using FNV-64a with bit vector accumulation. Equal texts always
// collide; texts sharing most of their words land within a small
// Hamming distance. Empty or all-whitespace input returns 0.
func Fingerprint(text string) uint64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) == 0 {
		return 0
	}

	var vector [64]int
	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		hash := h.Sum64()
		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Near reports whether two fingerprints are within threshold bits of
// each other.
func Near(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}
