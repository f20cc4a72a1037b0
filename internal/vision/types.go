// Package vision declares the model capabilities the attendance pipeline
// depends on. Real inference backends and test doubles are bound at
// composition time; the pipeline itself is model-agnostic.
package vision

import "context"

type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type Detection struct {
	Box        BoundingBox `json:"box"`
	Confidence float64     `json:"confidence"`
}

// Signal is one anti-spoofing modality's verdict: a score in [0,1] plus the
// model's own pass flag.
type Signal struct {
	Score  float64 `json:"score"`
	Passed bool    `json:"passed"`
}

type FaceDetector interface {
	Detect(ctx context.Context, image []byte) ([]Detection, error)
}

// FeatureExtractor produces a fixed-length embedding for a detected face.
type FeatureExtractor interface {
	Extract(ctx context.Context, image []byte, box BoundingBox) ([]float64, error)
}

type LivenessModel interface {
	Liveness(ctx context.Context, image []byte, box BoundingBox) (Signal, error)
}

type TextureAnalyzer interface {
	Texture(ctx context.Context, image []byte, box BoundingBox) (Signal, error)
}

type DepthAnalyzer interface {
	Depth(ctx context.Context, image []byte, box BoundingBox) (Signal, error)
}

// Models bundles every capability the pipeline calls.
type Models struct {
	Detector  FaceDetector
	Extractor FeatureExtractor
	Liveness  LivenessModel
	Texture   TextureAnalyzer
	Depth     DepthAnalyzer
}
