package vision

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
)

// EmbeddingDim is the fixed embedding length produced by the stub extractor,
// matching the dimensionality of the intended production model.
const EmbeddingDim = 128

var ErrEmptyImage = errors.New("empty image")

// StubModels is the placeholder inference backend. Scores are derived from a
// digest of the image bytes so the same image always yields the same result,
// which keeps enrollment and later verification consistent without a real
// model. Deployments replace this with an actual inference service.
type StubModels struct{}

func NewStubModels() Models {
	s := StubModels{}
	return Models{Detector: s, Extractor: s, Liveness: s, Texture: s, Depth: s}
}

func (StubModels) Detect(ctx context.Context, image []byte) ([]Detection, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	conf := 0.75 + 0.24*unitScore(image, "detect")
	return []Detection{{
		Box:        BoundingBox{X: 40, Y: 40, Width: 160, Height: 160},
		Confidence: conf,
	}}, nil
}

func (StubModels) Extract(ctx context.Context, image []byte, box BoundingBox) ([]float64, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	// Expand the digest into a unit-norm embedding.
	seed := sha256.Sum256(image)
	vec := make([]float64, EmbeddingDim)
	var norm float64
	buf := seed[:]
	for i := range vec {
		if i%4 == 0 && i > 0 {
			next := sha256.Sum256(buf)
			buf = next[:]
		}
		bits := binary.LittleEndian.Uint64(buf[(i%4)*8:])
		vec[i] = float64(int64(bits))/math.MaxInt64 - 0.5
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (StubModels) Liveness(ctx context.Context, image []byte, box BoundingBox) (Signal, error) {
	return stubSignal(image, "liveness")
}

func (StubModels) Texture(ctx context.Context, image []byte, box BoundingBox) (Signal, error) {
	return stubSignal(image, "texture")
}

func (StubModels) Depth(ctx context.Context, image []byte, box BoundingBox) (Signal, error) {
	return stubSignal(image, "depth")
}

func stubSignal(image []byte, modality string) (Signal, error) {
	if len(image) == 0 {
		return Signal{}, ErrEmptyImage
	}
	score := 0.8 + 0.19*unitScore(image, modality)
	return Signal{Score: score, Passed: score > 0.5}, nil
}

func unitScore(image []byte, salt string) float64 {
	sum := sha256.Sum256(append([]byte(salt+":"), image...))
	return float64(binary.LittleEndian.Uint32(sum[:4])) / math.MaxUint32
}
