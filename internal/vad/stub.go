package vad

// stubEngine deterministically alternates between voiced and silent
// windows, grounded on nupi-ai-plugin-vad-local-silero's StubEngine. It
// lets the "model" VAD kind run (and be tested) in any build that lacks
// the silero tag or a reachable ONNX Runtime shared library.
type stubEngine struct {
	toggleEvery int
	count       int
	speaking    bool
	threshold   float64
}

const stubToggleWindows = 31 // ~1s of 32ms windows

func newStubEngine() *stubEngine {
	return &stubEngine{toggleEvery: stubToggleWindows}
}

func (e *stubEngine) Infer(_ []byte) (float64, error) {
	e.count++
	if e.count >= e.toggleEvery {
		e.count = 0
		e.speaking = !e.speaking
	}
	if e.speaking {
		return 0.9, nil
	}
	return 0.1, nil
}

func (e *stubEngine) Reset() {
	e.count = 0
	e.speaking = false
}

func (e *stubEngine) Close() error { return nil }
