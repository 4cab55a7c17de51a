package analyzer

import "context"

// Entity is one span returned by an entity-recognition service.
type Entity struct {
	Label string  `json:"label"`
	Text  string  `json:"text"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float64 `json:"score"`
}

// Label is a scored class from a classifier or detector.
type Label struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// EntityRecognizer extracts named entities from text.
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]Entity, error)
}

// TextClassifier scores text. Zero-shot classifiers score the given labels;
// fixed-label classifiers ignore them.
type TextClassifier interface {
	Classify(ctx context.Context, text string, labels []string) ([]Label, error)
}

// SentimentScorer rates the overall tone of text.
type SentimentScorer interface {
	Sentiment(ctx context.Context, text string) (Label, error)
}

// ObjectDetector labels objects in an image.
type ObjectDetector interface {
	DetectObjects(ctx context.Context, image []byte) ([]Label, error)
}

// FaceDetector counts human faces in an image.
type FaceDetector interface {
	DetectFaces(ctx context.Context, image []byte) (int, error)
}

// OCR extracts printed text from an image with a confidence in [0,1].
type OCR interface {
	ExtractText(ctx context.Context, image []byte) (string, float64, error)
}
