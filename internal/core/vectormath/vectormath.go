// Package vectormath holds the brute-force similarity ranking and the vector
// byte encoding used by the collections that do not score in the database.
package vectormath

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/markdave123-py/Ledgerlens/internal/models"
)

// Candidate is a stored unit with its insertion sequence number.
type Candidate struct {
	Unit models.RetrievableUnit
	Seq  int64
}

// Rank scores candidates by cosine similarity to query and returns the top k,
// highest score first. Equal scores keep insertion order.
func Rank(query []float32, candidates []Candidate, k int) []models.ScoredUnit {
	type scored struct {
		c     Candidate
		score float64
	}
	qn := Norm(query)
	all := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		if len(c.Unit.Embedding) != len(query) {
			continue
		}
		all = append(all, scored{c: c, score: cosine(query, c.Unit.Embedding, qn)})
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].c.Seq < all[j].c.Seq
	})
	if k > 0 && k < len(all) {
		all = all[:k]
	}
	out := make([]models.ScoredUnit, len(all))
	for i, s := range all {
		out[i] = models.ScoredUnit{Unit: s.c.Unit, Score: s.score}
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, b, Norm(a))
}

func cosine(a, b []float32, normA float64) float64 {
	if normA == 0 {
		return 0
	}
	normB := Norm(b)
	if normB == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (normA * normB)
}

// Norm is the Euclidean length of v.
func Norm(v []float32) float64 {
	sum := 0.0
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Encode packs v as little-endian float32s, the layout RediSearch expects for
// FLOAT32 vector fields.
func Encode(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

// Decode is the inverse of Encode.
func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
