package examples

import (
	"math"
	"strings"
)

// EmbeddingDim is the width of the vector column in translator_examples
const EmbeddingDim = 384

// financeKeywords each get one feature slot
var financeKeywords = []string{
	"revenue", "gross", "net", "profit", "margin", "refund", "dispute", "chargeback",
	"cost", "spend", "ads", "meta", "facebook", "google", "fee", "fixed", "variable",
	"order", "transaction", "average", "aov", "roas", "return", "currency",
	"day", "daily", "week", "weekly", "month", "monthly", "quarter", "year", "yesterday", "today",
	"last", "this", "since", "between", "trend", "total", "sum", "count", "most", "least",
	"best", "worst", "highest", "lowest", "compare", "growth", "by",
}

// Embed produces a deterministic bag-of-features vector for similarity
// ranking between questions. It needs no model call, so the example store
// works offline.
func Embed(text string) []float32 {
	embedding := make([]float32, EmbeddingDim)
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return embedding
	}

	// slots 0-36: character frequencies
	counts := make(map[rune]int)
	for _, r := range text {
		counts[r]++
	}
	for i, r := range "abcdefghijklmnopqrstuvwxyz0123456789 " {
		embedding[i] = float32(counts[r]) / float32(len(text))
	}

	// slots 50+: keywords, weighted above character noise
	for i, keyword := range financeKeywords {
		if strings.Contains(text, keyword) {
			embedding[50+i] = 4
		}
	}

	// slots 150-152: structure
	embedding[150] = float32(len(text)) / 1000
	embedding[151] = float32(strings.Count(text, " ")) / float32(len(text))
	embedding[152] = float32(strings.Count(text, "?"))

	var sum float64
	for _, v := range embedding {
		sum += float64(v) * float64(v)
	}
	if sum > 0 {
		norm := float32(1 / math.Sqrt(sum))
		for i := range embedding {
			embedding[i] *= norm
		}
	}
	return embedding
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
