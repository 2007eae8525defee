package ocr

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Tesseract recognizes text with a local Tesseract install.
type Tesseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract creates a Tesseract client tuned for label codes.
func NewTesseract() (*Tesseract, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage(DefaultLanguages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting page segmentation mode: %w", err)
	}

	// Codes are not dictionary words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")
	_ = client.SetVariable("language_model_penalty_non_dict_word", "0")
	_ = client.SetVariable("language_model_penalty_non_freq_dict_word", "0")

	return &Tesseract{client: client}, nil
}

// Recognize implements Recognizer.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, langs []string) (Recognition, error) {
	if err := ctx.Err(); err != nil {
		return Recognition{}, err
	}

	data, err := encodePNG(img)
	if err != nil {
		return Recognition{}, err
	}

	// gosseract clients are not safe for concurrent use.
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(langs) > 0 {
		if err := t.client.SetLanguage(langs...); err != nil {
			return Recognition{}, fmt.Errorf("setting OCR language: %w", err)
		}
	}
	if err := t.client.SetImageFromBytes(data); err != nil {
		return Recognition{}, fmt.Errorf("setting image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return Recognition{}, fmt.Errorf("recognizing text: %w", err)
	}
	return Recognition{Text: text}, nil
}

// Close releases the Tesseract client.
func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}
