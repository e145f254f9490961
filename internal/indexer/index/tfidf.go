package index

import "math"

// Vector is a sparse lemma -> weight mapping.
type Vector map[string]float64

// Norm returns the Euclidean norm of v.
func (v Vector) Norm() float64 {
	var sum float64
	for _, w := range v {
		sum += w * w
	}
	return math.Sqrt(sum)
}

// Clone returns a copy of v.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, w := range v {
		out[k] = w
	}
	return out
}

// TF returns count/total, or 0 for a document without tokens.
func TF(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(count) / float64(total)
}

// IDF returns ln(totalDocs/df). df is at least 1 for any indexed lemma.
func IDF(totalDocs, df int) float64 {
	if df <= 0 || totalDocs <= 0 {
		return 0
	}
	return math.Log(float64(totalDocs) / float64(df))
}
