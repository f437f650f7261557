package preview

import (
	"hash/fnv"
	"math/bits"
	"strings"

	"golang.org/x/net/html"
)

// simhash folds the FNV-64a hashes of tokens into a 64-bit SimHash. Near
// identical token streams land a few bits apart.
func simhash(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var weights [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for bit := 0; bit < 64; bit++ {
			if sum&(1<<uint(bit)) != 0 {
				weights[bit]++
			} else {
				weights[bit]--
			}
		}
	}

	var fp uint64
	for bit, w := range weights {
		if w > 0 {
			fp |= 1 << uint(bit)
		}
	}
	return fp
}

// TextFingerprint hashes the case-folded words of text. Destinations that
// differ only in ads, timestamps or tracking snippets score as near duplicates.
func TextFingerprint(text string) uint64 {
	return simhash(strings.Fields(strings.ToLower(text)))
}

// StructureFingerprint hashes the page's tag sequence as 3-tag shingles,
// ignoring text and attributes. Parked-domain and interstitial templates
// share a structure even when their copy differs.
func StructureFingerprint(rawHTML string) uint64 {
	tags := tagSequence(rawHTML)
	if len(tags) < 3 {
		return simhash(tags)
	}

	shingles := make([]string, 0, len(tags)-2)
	for i := 0; i+3 <= len(tags); i++ {
		shingles = append(shingles, tags[i]+">"+tags[i+1]+">"+tags[i+2])
	}
	return simhash(shingles)
}

func tagSequence(rawHTML string) []string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// NearDuplicate reports whether two fingerprints are within threshold bits.
func NearDuplicate(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}
