package enrichment

import (
	"context"
	"errors"
	"strings"
)

var ErrEmptyText = errors.New("empty_text")

// Analysis is what the language model extracts from one conversation.
type Analysis struct {
	Sentiment      float64  `json:"sentiment"`
	Topics         []string `json:"topics"`
	Objections     []string `json:"objections"`
	Motivations    []string `json:"motivations"`
	NextBestAction string   `json:"nextBestAction"`
	Summary        string   `json:"summary"`
}

type Analyzer interface {
	Analyze(ctx context.Context, text string) (Analysis, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, recordingURL string) (string, error)
}

// StubAnalyzer returns a fixed analysis until a model provider is wired in.
type StubAnalyzer struct{}

func NewStubAnalyzer() Analyzer { return StubAnalyzer{} }

func (StubAnalyzer) Analyze(ctx context.Context, text string) (Analysis, error) {
	if err := ctx.Err(); err != nil {
		return Analysis{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Analysis{}, ErrEmptyText
	}
	return Analysis{
		Sentiment:      0.7,
		Topics:         []string{"pricing", "invisalign", "timeline"},
		Objections:     []string{"concerned about cost"},
		Motivations:    []string{"wedding in 6 months"},
		NextBestAction: "Send pricing breakdown email",
		Summary:        "Positive call. Lead is highly motivated due to upcoming wedding. Main concern is pricing. Should follow up with detailed breakdown and payment plan options.",
	}, nil
}

type StubTranscriber struct{}

func NewStubTranscriber() Transcriber { return StubTranscriber{} }

func (StubTranscriber) Transcribe(ctx context.Context, recordingURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(recordingURL) == "" {
		return "", ErrEmptyText
	}
	return "Hi, I'm calling about Invisalign. I have a wedding in six months and want to know about pricing and how long treatment takes.", nil
}
