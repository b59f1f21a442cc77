//go:build whisper

package recognition

/*
#cgo CFLAGS: -I${SRCDIR}/../../whisper.cpp/include -I${SRCDIR}/../../whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../whisper.cpp/build/src -L${SRCDIR}/../../whisper.cpp/build/ggml/src -lwhisper -lggml -lm -Wl,-rpath,${SRCDIR}/../../whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../whisper.cpp/build/ggml/src
#include "whisper.h"
#include <stdlib.h>
*/
import "C"
import (
	"fmt"
	"os"
	"strings"
	"sync"
	"unsafe"
)

// WhisperRecognizer implements Recognizer using whisper.cpp
type WhisperRecognizer struct {
	ctx      *C.struct_whisper_context
	mu       sync.Mutex
	language string
	threads  int
}

// NewWhisperRecognizer creates a new Whisper recognizer
func NewWhisperRecognizer(config Config) *WhisperRecognizer {
	return &WhisperRecognizer{
		language: config.Language,
		threads:  config.Threads,
	}
}

// LoadModel loads a Whisper model from the specified path
func (r *WhisperRecognizer) LoadModel(modelPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", modelPath)
	}

	cModelPath := C.CString(modelPath)
	defer C.free(unsafe.Pointer(cModelPath))

	ctx := C.whisper_init_from_file_with_params(cModelPath, C.whisper_context_default_params())
	if ctx == nil {
		return fmt.Errorf("failed to load model from: %s", modelPath)
	}

	if r.ctx != nil {
		C.whisper_free(r.ctx)
	}

	r.ctx = ctx
	return nil
}

// Transcribe runs full inference over 16 kHz mono samples
func (r *WhisperRecognizer) Transcribe(samples []float32) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx == nil {
		return "", fmt.Errorf("model not loaded")
	}

	if len(samples) == 0 {
		return "", fmt.Errorf("audio data is empty")
	}

	params := C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)

	cLanguage := C.CString(r.language)
	defer C.free(unsafe.Pointer(cLanguage))
	params.language = cLanguage
	params.translate = C.bool(false)
	params.print_progress = C.bool(false)
	params.print_realtime = C.bool(false)
	if r.threads > 0 {
		params.n_threads = C.int(r.threads)
	}

	result := C.whisper_full(
		r.ctx,
		params,
		(*C.float)(unsafe.Pointer(&samples[0])),
		C.int(len(samples)),
	)

	if result != 0 {
		return "", fmt.Errorf("whisper_full failed with code: %d", result)
	}

	var sb strings.Builder
	nSegments := int(C.whisper_full_n_segments(r.ctx))
	for i := 0; i < nSegments; i++ {
		sb.WriteString(C.GoString(C.whisper_full_get_segment_text(r.ctx, C.int(i))))
	}

	return sb.String(), nil
}

// Close releases resources
func (r *WhisperRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		C.whisper_free(r.ctx)
		r.ctx = nil
	}

	return nil
}
