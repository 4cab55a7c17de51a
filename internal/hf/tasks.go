package hf

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Aafreen2203/SafePostAI/internal/analyzer"
)

type inferenceRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

var waitForModel = map[string]any{"wait_for_model": true}

type nerSpan struct {
	EntityGroup string  `json:"entity_group"`
	Entity      string  `json:"entity"`
	Score       float64 `json:"score"`
	Word        string  `json:"word"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
}

// Recognize runs token classification with simple aggregation, so adjacent
// word pieces come back as one entity.
func (c *Client) Recognize(ctx context.Context, text string) ([]analyzer.Entity, error) {
	var spans []nerSpan
	err := c.postJSON(ctx, c.models.NER, inferenceRequest{
		Inputs:     text,
		Parameters: map[string]any{"aggregation_strategy": "simple"},
		Options:    waitForModel,
	}, &spans)
	if err != nil {
		return nil, err
	}
	out := make([]analyzer.Entity, 0, len(spans))
	for _, s := range spans {
		label := s.EntityGroup
		if label == "" {
			label = s.Entity
		}
		word := s.Word
		if s.End > s.Start && s.End <= len(text) {
			word = text[s.Start:s.End]
		}
		out = append(out, analyzer.Entity{Label: label, Text: word, Start: s.Start, End: s.End, Score: s.Score})
	}
	return out, nil
}

// classifyText runs a fixed-label text classifier. The API answers with
// either a flat or a batch-nested list.
func (c *Client) classifyText(ctx context.Context, model, text string) ([]analyzer.Label, error) {
	var raw json.RawMessage
	if err := c.postJSON(ctx, model, inferenceRequest{
		Inputs:     text,
		Parameters: map[string]any{"top_k": nil},
		Options:    waitForModel,
	}, &raw); err != nil {
		return nil, err
	}

	var nested [][]analyzer.Label
	if err := json.Unmarshal(raw, &nested); err == nil {
		if len(nested) == 0 {
			return []analyzer.Label{}, nil
		}
		return nested[0], nil
	}
	var flat []analyzer.Label
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("decoding huggingface %s labels: %w", model, err)
	}
	return flat, nil
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

// zeroShot scores each candidate label independently (multi-label).
func (c *Client) zeroShot(ctx context.Context, text string, labels []string) ([]analyzer.Label, error) {
	var resp zeroShotResponse
	err := c.postJSON(ctx, c.models.ZeroShot, inferenceRequest{
		Inputs:     text,
		Parameters: map[string]any{"candidate_labels": labels, "multi_label": true},
		Options:    waitForModel,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Labels) != len(resp.Scores) {
		return nil, fmt.Errorf("huggingface %s: %d labels but %d scores", c.models.ZeroShot, len(resp.Labels), len(resp.Scores))
	}
	out := make([]analyzer.Label, len(resp.Labels))
	for i := range resp.Labels {
		out[i] = analyzer.Label{Label: resp.Labels[i], Score: resp.Scores[i]}
	}
	return out, nil
}

type detection struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// DetectObjects posts the raw image to the object-detection model.
func (c *Client) DetectObjects(ctx context.Context, image []byte) ([]analyzer.Label, error) {
	var dets []detection
	if err := c.post(ctx, c.models.Objects, http.DetectContentType(image), image, &dets); err != nil {
		return nil, err
	}
	out := make([]analyzer.Label, len(dets))
	for i, d := range dets {
		out[i] = analyzer.Label{Label: d.Label, Score: d.Score}
	}
	return out, nil
}

// Sentiment returns the highest-scoring sentiment label, lower-cased. An
// empty answer reads as neutral.
func (c *Client) Sentiment(ctx context.Context, text string) (analyzer.Label, error) {
	labels, err := c.classifyText(ctx, c.models.Sentiment, text)
	if err != nil {
		return analyzer.Label{}, err
	}
	best := analyzer.Label{Label: "neutral"}
	for _, l := range labels {
		if l.Score > best.Score {
			best = analyzer.Label{Label: strings.ToLower(l.Label), Score: l.Score}
		}
	}
	return best, nil
}

// DetectFaces posts the raw image to the face-detection model and counts the
// boxes it returns.
func (c *Client) DetectFaces(ctx context.Context, image []byte) (int, error) {
	var boxes []json.RawMessage
	if err := c.post(ctx, c.models.Faces, http.DetectContentType(image), image, &boxes); err != nil {
		return 0, err
	}
	return len(boxes), nil
}

// ToxicityClassifier adapts the toxicity model to analyzer.TextClassifier.
type ToxicityClassifier struct{ c *Client }

// Toxicity returns the toxicity classifier.
func (c *Client) Toxicity() *ToxicityClassifier { return &ToxicityClassifier{c: c} }

// Classify ignores labels; the model has a fixed label set.
func (t *ToxicityClassifier) Classify(ctx context.Context, text string, _ []string) ([]analyzer.Label, error) {
	return t.c.classifyText(ctx, t.c.models.Toxicity, text)
}

// ZeroShotClassifier adapts the zero-shot model to analyzer.TextClassifier.
type ZeroShotClassifier struct{ c *Client }

// ZeroShot returns the zero-shot classifier.
func (c *Client) ZeroShot() *ZeroShotClassifier { return &ZeroShotClassifier{c: c} }

// Classify scores text against labels.
func (z *ZeroShotClassifier) Classify(ctx context.Context, text string, labels []string) ([]analyzer.Label, error) {
	return z.c.zeroShot(ctx, text, labels)
}

var (
	_ analyzer.EntityRecognizer = (*Client)(nil)
	_ analyzer.ObjectDetector   = (*Client)(nil)
	_ analyzer.FaceDetector     = (*Client)(nil)
	_ analyzer.SentimentScorer  = (*Client)(nil)
	_ analyzer.TextClassifier   = (*ToxicityClassifier)(nil)
	_ analyzer.TextClassifier   = (*ZeroShotClassifier)(nil)
)
