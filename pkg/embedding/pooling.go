package embedding

import (
	"github.com/karen-ai/nlpcore/pkg/provider/encoder"
)

// pool reduces an encoding to a single vector.
//
// Server-pooled encodings (Vector set) pass through untouched — the
// configured strategy only applies to backends that expose per-token hidden
// states. An encoding with no token states and no vector yields nil.
func pool(enc *encoder.Encoding, strategy string) []float32 {
	if enc == nil {
		return nil
	}
	if enc.Vector != nil {
		return enc.Vector
	}
	if len(enc.TokenStates) == 0 {
		return nil
	}

	switch strategy {
	case "cls":
		return cloneVector(enc.TokenStates[0])
	case "max":
		return maxPool(enc.TokenStates)
	default: // "mean" and anything unrecognised
		return meanPool(enc.TokenStates)
	}
}

// meanPool averages the hidden states element-wise across tokens.
func meanPool(states [][]float32) []float32 {
	dim := len(states[0])
	out := make([]float32, dim)
	for _, row := range states {
		for i, v := range row {
			out[i] += v
		}
	}
	n := float32(len(states))
	for i := range out {
		out[i] /= n
	}
	return out
}

// maxPool takes the element-wise maximum across tokens.
func maxPool(states [][]float32) []float32 {
	out := cloneVector(states[0])
	for _, row := range states[1:] {
		for i, v := range row {
			if v > out[i] {
				out[i] = v
			}
		}
	}
	return out
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
