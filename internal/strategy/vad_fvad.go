//go:build fvad

package strategy

/*
#cgo LDFLAGS: -lfvad
#include <fvad.h>
#include <stdlib.h>
*/
import "C"

import "fmt"

// fvadClassifier wraps libfvad (a non-machine-learned, energy/spectral
// voice-activity detector — not the Silero/ONNX style classifier the
// rest of this ecosystem favors) behind the Classifier interface.
// Built only with -tags fvad, matching the optional-import shape the
// Python original used for webrtcvad.
type fvadClassifier struct {
	handle *C.Fvad
}

func newFvadClassifier(aggressiveness int) (Classifier, error) {
	h := C.fvad_new()
	if h == nil {
		return nil, fmt.Errorf("fvad: allocation failed")
	}
	if C.fvad_set_mode(h, C.int(aggressiveness)) != 0 {
		C.fvad_free(h)
		return nil, fmt.Errorf("fvad: invalid aggressiveness %d", aggressiveness)
	}
	return &fvadClassifier{handle: h}, nil
}

func (c *fvadClassifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if C.fvad_set_sample_rate(c.handle, C.int(sampleRate)) != 0 {
		return false, fmt.Errorf("fvad: unsupported sample rate %d", sampleRate)
	}
	samples := make([]C.int16_t, len(frame)/2)
	for i := range samples {
		samples[i] = C.int16_t(int16(frame[i*2]) | int16(frame[i*2+1])<<8)
	}
	result := C.fvad_process(c.handle, (*C.int16_t)(&samples[0]), C.size_t(len(samples)))
	if result < 0 {
		return false, fmt.Errorf("fvad: invalid frame length")
	}
	return result == 1, nil
}

func (c *fvadClassifier) Close() {
	C.fvad_free(c.handle)
}

// FvadClassifierFactory is registered as the real classifier when built
// with -tags fvad: init installs it as DefaultClassifierFactory.
var FvadClassifierFactory ClassifierFactory = newFvadClassifier

func init() {
	DefaultClassifierFactory = FvadClassifierFactory
}
