package embedding

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
)

// fallbackVector derives a deterministic pseudo-embedding from the text
// alone, used when no encoder backend is available. It is not semantically
// meaningful, but identical texts always map to identical vectors, so
// cache keys, similarity self-comparisons and downstream plumbing keep
// working during an outage.
//
// Construction: the MD5, SHA-1 and SHA-256 digests of the text are
// concatenated (68 bytes), read as consecutive 4-byte big-endian signed
// integers and scaled by 2^-31 into [-1, 1). The resulting 17 base values
// are repeated cyclically and truncated to dim.
func fallbackVector(text string, dim int) []float32 {
	if dim <= 0 {
		return nil
	}

	sumMD5 := md5.Sum([]byte(text))
	sumSHA1 := sha1.Sum([]byte(text))
	sumSHA256 := sha256.Sum256([]byte(text))

	digest := make([]byte, 0, md5.Size+sha1.Size+sha256.Size)
	digest = append(digest, sumMD5[:]...)
	digest = append(digest, sumSHA1[:]...)
	digest = append(digest, sumSHA256[:]...)

	base := make([]float32, 0, len(digest)/4)
	for i := 0; i+4 <= len(digest); i += 4 {
		v := int32(binary.BigEndian.Uint32(digest[i : i+4]))
		base = append(base, float32(float64(v)/(1<<31)))
	}

	out := make([]float32, dim)
	for i := range out {
		out[i] = base[i%len(base)]
	}
	return out
}
