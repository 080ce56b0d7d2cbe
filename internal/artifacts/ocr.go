package artifacts

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine runs tesseract with Korean+English models, retrying
// once without a language hint when those models are not installed.
type TesseractEngine struct{}

// Recognize OCRs one image file.
func (t *TesseractEngine) Recognize(path string) (string, error) {
	text, err := recognizeWith(path, "kor", "eng")
	if err == nil {
		return text, nil
	}
	if !strings.Contains(strings.ToLower(err.Error()), "lang") {
		return "", err
	}

	text, fallbackErr := recognizeWith(path)
	if fallbackErr != nil {
		return "", fmt.Errorf("ocr with kor+eng: %v; fallback: %w", err, fallbackErr)
	}
	return text, nil
}

func recognizeWith(path string, languages ...string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if len(languages) > 0 {
		if err := client.SetLanguage(languages...); err != nil {
			return "", err
		}
	}
	if err := client.SetImage(path); err != nil {
		return "", err
	}
	return client.Text()
}
