// Package liveness combines anti-spoofing modalities into one verdict.
package liveness

import (
	"context"
	"errors"
	"fmt"

	"faceattend/internal/vision"
)

// Modality weights for the composite score.
const (
	livenessWeight = 0.4
	textureWeight  = 0.3
	depthWeight    = 0.3
)

// ErrUnavailable means a sub-model call failed; the check fails closed
// rather than defaulting to a pass.
var ErrUnavailable = errors.New("liveness assessment unavailable")

type Report struct {
	LivenessScore float64 `json:"liveness_score"`
	TextureScore  float64 `json:"texture_score"`
	DepthScore    float64 `json:"depth_score"`
	OverallScore  float64 `json:"overall_score"`
	IsLive        bool    `json:"is_live"`
	Passed        bool    `json:"passed"`
}

type Aggregator struct {
	liveness  vision.LivenessModel
	texture   vision.TextureAnalyzer
	depth     vision.DepthAnalyzer
	threshold float64
}

func New(m vision.Models, threshold float64) *Aggregator {
	return &Aggregator{liveness: m.Liveness, texture: m.Texture, depth: m.Depth, threshold: threshold}
}

// Assess runs all three modalities. A live verdict needs the weighted overall
// score above the threshold AND every individual modality to pass on its own:
// the gate keeps a strong liveness score from masking a failed depth or
// texture check.
func (a *Aggregator) Assess(ctx context.Context, image []byte, box vision.BoundingBox) (Report, error) {
	live, err := a.liveness.Liveness(ctx, image, box)
	if err != nil {
		return Report{}, fmt.Errorf("%w: liveness model: %v", ErrUnavailable, err)
	}
	tex, err := a.texture.Texture(ctx, image, box)
	if err != nil {
		return Report{}, fmt.Errorf("%w: texture model: %v", ErrUnavailable, err)
	}
	dep, err := a.depth.Depth(ctx, image, box)
	if err != nil {
		return Report{}, fmt.Errorf("%w: depth model: %v", ErrUnavailable, err)
	}

	overall := livenessWeight*live.Score + textureWeight*tex.Score + depthWeight*dep.Score
	isLive := overall > a.threshold && live.Passed && tex.Passed && dep.Passed
	return Report{
		LivenessScore: live.Score,
		TextureScore:  tex.Score,
		DepthScore:    dep.Score,
		OverallScore:  overall,
		IsLive:        isLive,
		Passed:        isLive,
	}, nil
}
