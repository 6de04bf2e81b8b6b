package classify

import (
	"fmt"
	"math/rand"
	"time"
)

const nameSuffixAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateAlternativeNames produces candidate names for conflict recovery:
// a timestamp-suffixed variant, a -v2 variant, and a random-suffixed one.
func GenerateAlternativeNames(base string) []string {
	return []string{
		fmt.Sprintf("%s-%d", base, time.Now().Unix()),
		base + "-v2",
		fmt.Sprintf("%s-%s", base, randomSuffix(4)),
	}
}

func randomSuffix(n int) string {
	suffix := make([]byte, n)
	for i := range suffix {
		suffix[i] = nameSuffixAlphabet[rand.Intn(len(nameSuffixAlphabet))]
	}
	return string(suffix)
}
