// annotators.go: ports for the external speech and translation services
package voice

import (
	"context"
	"time"
)

// Transcriber converts an audio file into text. Implementations wrap an
// external speech-to-text provider; the agent treats them as opaque.
type Transcriber interface {
	Transcribe(ctx context.Context, localPath string) (string, error)
}

// Translator converts text between languages. Implementations wrap an
// external translation provider.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// TranscribeWithTimeout calls the transcriber under a bounded timeout.
// Annotator failure is soft: the caller enqueues the record with an empty
// transcript rather than failing the capture.
func TranscribeWithTimeout(ctx context.Context, t Transcriber, localPath string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.Transcribe(ctx, localPath)
}

// TranslateWithTimeout calls the translator under a bounded timeout.
func TranslateWithTimeout(ctx context.Context, t Translator, text, targetLang string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return t.Translate(ctx, text, targetLang)
}
