// Package sampling draws next tokens from logits vectors.
package sampling

import (
	"math"
	"math/rand"
)

// Config controls sampling. Temperature <= 0 selects greedy decoding.
// TopK <= 0 keeps the full vocabulary; TopP outside (0,1) disables the
// nucleus cut.
type Config struct {
	Seed        int64
	Temperature float32
	TopK        int
	TopP        float32
}

type Sampler struct {
	rng    *rand.Rand
	cfg    Config
	greedy bool
}

func New(cfg Config) *Sampler {
	greedy := cfg.Temperature <= 0
	if cfg.Temperature <= 0 {
		cfg.Temperature = 1
	}
	if cfg.TopP <= 0 || cfg.TopP > 1 {
		cfg.TopP = 1
	}
	return &Sampler{
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		cfg:    cfg,
		greedy: greedy,
	}
}

// Sample draws one token id and returns it with the natural log of its
// probability under the truncated distribution. Greedy decoding
// reports log-probability 0.
func (s *Sampler) Sample(logits []float32) (int, float32) {
	if s.greedy {
		return argmax(logits), 0
	}

	k := s.cfg.TopK
	if k <= 0 || k > len(logits) {
		k = len(logits)
	}
	idx, val := topK(logits, k, 1/s.cfg.Temperature)
	if len(idx) == 0 {
		return 0, 0
	}

	// Softmax over the shortlist, shifted by the max for stability.
	maxv := val[0]
	prob := make([]float64, len(val))
	var sum float64
	for i, v := range val {
		e := math.Exp(float64(v - maxv))
		prob[i] = e
		sum += e
	}
	if sum == 0 {
		return idx[0], 0
	}
	for i := range prob {
		prob[i] /= sum
	}

	// Nucleus cut: drop the tail once cumulative mass reaches TopP.
	cut := len(prob)
	if s.cfg.TopP < 1 {
		var c float64
		for i := range prob {
			c += prob[i]
			if float32(c) >= s.cfg.TopP {
				cut = i + 1
				break
			}
		}
	}

	r := s.rng.Float64()
	var c float64
	for i := 0; i < cut; i++ {
		c += prob[i]
		if r <= c {
			return idx[i], float32(math.Log(prob[i]))
		}
	}
	return idx[cut-1], float32(math.Log(prob[cut-1]))
}

func argmax(x []float32) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}

// topK returns the indices and temperature-scaled values of the k
// largest logits, ordered descending. O(V*K) insertion, fine for the
// small K used here.
func topK(logits []float32, k int, invTemp float32) ([]int, []float32) {
	idx := make([]int, 0, k+1)
	val := make([]float32, 0, k+1)
	for i, l := range logits {
		v := l * invTemp
		pos := len(val)
		for pos > 0 && val[pos-1] < v {
			pos--
		}
		if pos >= k {
			continue
		}
		idx = append(idx, 0)
		val = append(val, 0)
		copy(idx[pos+1:], idx[pos:])
		copy(val[pos+1:], val[pos:])
		idx[pos] = i
		val[pos] = v
		if len(val) > k {
			idx = idx[:k]
			val = val[:k]
		}
	}
	return idx, val
}
