//go:build silero

package vad

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

const sileroStateSize = 128

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

// sileroEngine runs Silero VAD v5 inference via ONNX Runtime, grounded on
// nupi-ai-plugin-vad-local-silero's SileroEngine. The model path is supplied
// through the XIAOZHI_SILERO_MODEL_PATH environment variable rather than
// embedded, since this server ships without a bundled model asset.
type sileroEngine struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	stateTensor  *ort.Tensor[float32]
	srTensor     *ort.Tensor[int64]
	outputTensor *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]
}

func newNativeEngine(_ float64) (nativeEngine, error) {
	modelPath := os.Getenv("XIAOZHI_SILERO_MODEL_PATH")
	if modelPath == "" {
		return nil, fmt.Errorf("vad: XIAOZHI_SILERO_MODEL_PATH not set")
	}

	ortInitOnce.Do(func() {
		if libPath := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return nil, fmt.Errorf("vad: initialize onnxruntime: %w", ortInitErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, modelWindowSamples))
	if err != nil {
		return nil, fmt.Errorf("vad: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("vad: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{16000})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("vad: create sr tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("vad: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("vad: create stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("vad: create session: %w", err)
	}

	return &sileroEngine{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
	}, nil
}

func (e *sileroEngine) Infer(window []byte) (float64, error) {
	samples := make([]float32, len(window)/2)
	for i := range samples {
		u := uint16(window[2*i]) | uint16(window[2*i+1])<<8
		samples[i] = float32(int16(u)) / 32768.0
	}
	copy(e.inputTensor.GetData(), samples)

	if err := e.session.Run(); err != nil {
		return 0, fmt.Errorf("vad: inference: %w", err)
	}
	prob := e.outputTensor.GetData()[0]
	copy(e.stateTensor.GetData(), e.stateNTensor.GetData())
	return float64(prob), nil
}

func (e *sileroEngine) Reset() {
	data := e.stateTensor.GetData()
	for i := range data {
		data[i] = 0
	}
}

func (e *sileroEngine) Close() error {
	e.session.Destroy()
	e.inputTensor.Destroy()
	e.stateTensor.Destroy()
	e.srTensor.Destroy()
	e.outputTensor.Destroy()
	e.stateNTensor.Destroy()
	return nil
}
