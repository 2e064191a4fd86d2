//go:build onnx
// +build onnx

package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// YOLODetector implements ObjectDetector with a YOLOv8 model on ONNX Runtime.
// Requires build tag 'onnx'.
type YOLODetector struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputSize  int
	iou        float64
	logger     *zap.Logger
	mu         sync.Mutex
}

// NewObjectDetector loads the model at cfg.ModelPath
func NewObjectDetector(cfg Config, logger *zap.Logger) (ObjectDetector, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("no model configured: %w", ErrUnavailable)
	}

	// Allow user to provide shared library path via config or environment variable.
	if cfg.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
	} else if shlib := os.Getenv("ONNXRUNTIME_SHARED_LIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	} else if shlib := os.Getenv("ORT_SHLIB"); shlib != "" {
		ort.SetSharedLibraryPath(shlib)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnx runtime init failed: %v: %w", err, ErrUnavailable)
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to inspect model %s: %v: %w", cfg.ModelPath, err, ErrUnavailable)
	}
	if len(inputsInfo) == 0 || len(outputsInfo) == 0 {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("model %s has no inputs or outputs: %w", cfg.ModelPath, ErrUnavailable)
	}

	inputName, outputName := inputsInfo[0].Name, outputsInfo[0].Name
	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{inputName}, []string{outputName}, nil)
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("session creation failed: %v: %w", err, ErrUnavailable)
	}

	size := cfg.InputSize
	if size <= 0 {
		size = 640
	}
	threshold := cfg.IoUThreshold
	if threshold <= 0 {
		threshold = 0.45
	}

	logger.Info("YOLO object detector ready",
		zap.String("model", cfg.ModelPath),
		zap.String("input", inputName),
		zap.String("output", outputName),
		zap.Int("input_size", size),
	)
	return &YOLODetector{
		session:    sess,
		inputName:  inputName,
		outputName: outputName,
		inputSize:  size,
		iou:        threshold,
		logger:     logger,
	}, nil
}

// Infer runs the model on img and returns detections in frame pixels
func (y *YOLODetector) Infer(img *image.RGBA, confidence float64) ([]Detection, error) {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.session == nil {
		return nil, fmt.Errorf("detector closed: %w", ErrUnavailable)
	}

	lb := newLetterbox(img.Bounds().Dx(), img.Bounds().Dy(), y.inputSize)
	input, err := ort.NewTensor(ort.NewShape(1, 3, int64(y.inputSize), int64(y.inputSize)), lb.tensor(lb.apply(img)))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	outputs := make([]ort.Value, 1)
	if err := y.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("onnx run failed: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("onnx returned no outputs")
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type (want float32 tensor)")
	}
	shape := out.GetShape()
	if len(shape) != 3 || shape[1] <= 4 {
		return nil, fmt.Errorf("unexpected output shape %v", shape)
	}

	dets := decodeYOLO(out.GetData(), int(shape[1])-4, int(shape[2]), confidence, lb)
	return nonMaxSuppression(dets, y.iou), nil
}

// Close releases session and environment resources.
func (y *YOLODetector) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	if y.session != nil {
		y.session.Destroy()
		y.session = nil
	}
	ort.DestroyEnvironment()
	return nil
}
