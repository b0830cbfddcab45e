package watermarker

import (
	"context"
	"fmt"
	"image"

	"github.com/menta2k/watermarker/internal/config"
	"github.com/menta2k/watermarker/pkg/client"
	"github.com/menta2k/watermarker/pkg/detection"
	"github.com/menta2k/watermarker/pkg/llamacpp"
	"github.com/menta2k/watermarker/pkg/ollama"
	"github.com/menta2k/watermarker/pkg/processing"
	"github.com/menta2k/watermarker/pkg/types"
	"github.com/menta2k/watermarker/pkg/vision"
)

// Default server URLs for the remote vision backends.
const (
	DefaultOllamaURL   = "http://localhost:11435/api/chat"
	DefaultLlamaCppURL = "http://localhost:8080"
)

// AnchorSuggester picks a placement anchor for one base image. The subject
// box is returned for overlays and may be nil. Implementations must be safe
// for concurrent use; Run calls Suggest from multiple workers.
type AnchorSuggester interface {
	Suggest(ctx context.Context, base image.Image, mark image.Point, margin int) (types.Anchor, *types.Box, error)
}

// LocalSuggester scores placements with the offline saliency detector.
type LocalSuggester struct {
	detector *vision.SubjectDetector
}

// NewLocalSuggester creates a suggester that needs no external services.
func NewLocalSuggester() *LocalSuggester {
	return &LocalSuggester{detector: vision.New()}
}

// Suggest implements AnchorSuggester.
func (s *LocalSuggester) Suggest(ctx context.Context, base image.Image, mark image.Point, margin int) (types.Anchor, *types.Box, error) {
	anchor, subject := s.detector.SuggestPlacement(base, mark, margin)
	return anchor, subject, nil
}

// RemoteSuggester asks a vision model where the dominant subject sits and
// anchors the watermark over the least covered candidate placement.
type RemoteSuggester struct {
	detector    *detection.Detector
	processor   *processing.Processor
	model       string
	sendFormat  string
	sendMaxDim  int
	sendQuality int
}

// NewRemoteSuggester creates a suggester backed by a vision model client.
func NewRemoteSuggester(vc client.VisionClient, vcfg config.VisionConfig) *RemoteSuggester {
	return &RemoteSuggester{
		detector:    detection.NewDetector(vc),
		processor:   processing.NewProcessor(),
		model:       vcfg.Model,
		sendFormat:  vcfg.SendFormat,
		sendMaxDim:  vcfg.SendMaxDim,
		sendQuality: vcfg.SendQuality,
	}
}

// Suggest implements AnchorSuggester.
func (s *RemoteSuggester) Suggest(ctx context.Context, base image.Image, mark image.Point, margin int) (types.Anchor, *types.Box, error) {
	imgB64, err := s.processor.PrepareImageForModel(base, s.sendFormat, s.sendMaxDim, s.sendQuality)
	if err != nil {
		return "", nil, fmt.Errorf("prepare image for model: %w", err)
	}

	result, err := s.detector.DetectSubject(ctx, s.model, imgB64)
	if err != nil {
		return "", nil, err
	}

	bounds := base.Bounds()
	subject := result.Primary.Box
	anchor := detection.ChooseAnchor(subject, image.Pt(bounds.Dx(), bounds.Dy()), mark, margin)
	return anchor, &subject, nil
}

// NewSuggester builds the advisor named by the vision configuration.
// An empty URL selects the backend's default server.
func NewSuggester(vcfg config.VisionConfig) (AnchorSuggester, error) {
	switch vcfg.Backend {
	case "local", "":
		return NewLocalSuggester(), nil
	case "ollama":
		url := vcfg.URL
		if url == "" {
			url = DefaultOllamaURL
		}
		vc, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		return NewRemoteSuggester(vc, vcfg), nil
	case "llamacpp":
		url := vcfg.URL
		if url == "" {
			url = DefaultLlamaCppURL
		}
		vc, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("llama.cpp client: %w", err)
		}
		return NewRemoteSuggester(vc, vcfg), nil
	default:
		return nil, fmt.Errorf("unknown vision backend %q", vcfg.Backend)
	}
}
