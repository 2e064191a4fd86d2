package detector

import (
	"errors"
	"image"

	"github.com/raaihank/frame-sentinel/internal/frame"
)

// ErrUnavailable is returned when no learned object detector is compiled in
// or its model cannot be loaded
var ErrUnavailable = errors.New("object detector unavailable")

// Detection is one box reported by an ObjectDetector, in frame pixels
type Detection struct {
	Box        frame.Region
	ClassID    int
	Confidence float64
}

// ObjectDetector is a learned multi-class detector
type ObjectDetector interface {
	Infer(img *image.RGBA, confidence float64) ([]Detection, error)
	Close() error
}

// FaceDetector finds frontal faces in a grayscale frame
type FaceDetector interface {
	DetectFaces(gray *image.Gray) []frame.Region
}

// Result maps each category to its regions in emitter order
type Result map[frame.Category][]frame.Region

// NewResult returns a Result with an empty entry for every category
func NewResult() Result {
	r := make(Result, len(frame.Categories))
	for _, c := range frame.Categories {
		r[c] = []frame.Region{}
	}
	return r
}

// Add appends a region to category c
func (r Result) Add(c frame.Category, region frame.Region) {
	r[c] = append(r[c], region)
}

func (r Result) merge(other Result) {
	for c, regions := range other {
		r[c] = append(r[c], regions...)
	}
}

// Total returns the number of regions across all categories
func (r Result) Total() int {
	n := 0
	for _, regions := range r {
		n += len(regions)
	}
	return n
}

// Config holds the detector settings
type Config struct {
	ModelPath         string  `yaml:"model_path" mapstructure:"model_path"`
	InputSize         int     `yaml:"input_size" mapstructure:"input_size"`
	IoUThreshold      float64 `yaml:"iou_threshold" mapstructure:"iou_threshold"`
	SharedLibraryPath string  `yaml:"shared_library_path" mapstructure:"shared_library_path"`
	CascadePath       string  `yaml:"cascade_path" mapstructure:"cascade_path"`
	ScaleFactor       float64 `yaml:"scale_factor" mapstructure:"scale_factor"`
	MinNeighbors      int     `yaml:"min_neighbors" mapstructure:"min_neighbors"`
}

// DefaultConfig returns the stock detector settings
func DefaultConfig() Config {
	return Config{
		InputSize:    640,
		IoUThreshold: 0.45,
		ScaleFactor:  1.1,
		MinNeighbors: 4,
	}
}
