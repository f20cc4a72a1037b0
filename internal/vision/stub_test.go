package vision

import (
	"context"
	"testing"
)

func TestStubDeterministicPerImage(t *testing.T) {
	m := NewStubModels()
	a1, err := m.Extractor.Extract(context.Background(), []byte("same"), BoundingBox{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	a2, _ := m.Extractor.Extract(context.Background(), []byte("same"), BoundingBox{})
	b, _ := m.Extractor.Extract(context.Background(), []byte("different"), BoundingBox{})
	if len(a1) != EmbeddingDim {
		t.Fatalf("expected %d-dim embedding, got %d", EmbeddingDim, len(a1))
	}
	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("same image must embed identically (index %d)", i)
		}
	}
	var identical = true
	for i := range a1 {
		if a1[i] != b[i] {
			identical = false
			break
		}
	}
	if identical {
		t.Fatalf("different images must embed differently")
	}
}

func TestStubEmbeddingIsUnitNorm(t *testing.T) {
	m := NewStubModels()
	vec, err := m.Extractor.Extract(context.Background(), []byte("img"), BoundingBox{})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm < 0.999 || norm > 1.001 {
		t.Fatalf("expected unit norm, got %v", norm)
	}
}

func TestStubRejectsEmptyImage(t *testing.T) {
	m := NewStubModels()
	if _, err := m.Detector.Detect(context.Background(), nil); err != ErrEmptyImage {
		t.Fatalf("expected ErrEmptyImage, got %v", err)
	}
	if _, err := m.Liveness.Liveness(context.Background(), nil, BoundingBox{}); err != ErrEmptyImage {
		t.Fatalf("expected ErrEmptyImage from liveness, got %v", err)
	}
}
