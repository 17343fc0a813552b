package simulate

import (
	"errors"
	"fmt"
	"os"

	"ctsharness/internal/frame"

	"gopkg.in/yaml.v3"
)

var ErrInvalidScenario = errors.New("invalid scenario")

type Scenario struct {
	Name    string       `yaml:"name"`
	Cameras []CameraSpec `yaml:"cameras"`
}

type CameraSpec struct {
	ID     string  `yaml:"id"`
	Frames int     `yaml:"frames"`
	FPS    float64 `yaml:"fps"`
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	Format string  `yaml:"format"`
	// ChromaRowPadding adds bytes past each interleaved chroma row.
	ChromaRowPadding int `yaml:"chroma-row-padding"`
}

func (s CameraSpec) Layout() (Layout, error) {
	format, err := frame.ParseFormat(s.Format)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Format: format, Width: s.Width, Height: s.Height, RowPadding: s.ChromaRowPadding}, nil
}

func LoadScenario(path string) (Scenario, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	scenario, err := ParseScenario(payload)
	if err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

func ParseScenario(payload []byte) (Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(payload, &scenario); err != nil {
		return Scenario{}, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	if err := scenario.Validate(); err != nil {
		return Scenario{}, err
	}
	return scenario, nil
}

func (s Scenario) Validate() error {
	if len(s.Cameras) == 0 {
		return fmt.Errorf("%w: no cameras", ErrInvalidScenario)
	}
	seen := make(map[string]struct{}, len(s.Cameras))
	for index, camera := range s.Cameras {
		if camera.ID == "" {
			return fmt.Errorf("%w: camera %d has no id", ErrInvalidScenario, index)
		}
		if _, dup := seen[camera.ID]; dup {
			return fmt.Errorf("%w: camera %q listed twice", ErrInvalidScenario, camera.ID)
		}
		seen[camera.ID] = struct{}{}
		if camera.Frames <= 0 || camera.Width <= 0 || camera.Height <= 0 {
			return fmt.Errorf("%w: camera %q needs frames and dimensions", ErrInvalidScenario, camera.ID)
		}
		if camera.ChromaRowPadding < 0 {
			return fmt.Errorf("%w: camera %q has negative padding", ErrInvalidScenario, camera.ID)
		}
		layout, err := camera.Layout()
		if err != nil {
			return fmt.Errorf("%w: camera %q: %v", ErrInvalidScenario, camera.ID, err)
		}
		if layout.Format == frame.FormatPrivate || layout.Format == frame.FormatJPEG {
			return fmt.Errorf("%w: camera %q: %s frames cannot be synthesized", ErrInvalidScenario, camera.ID, layout.Format)
		}
	}
	return nil
}

// TotalFrames sums the frames of every camera.
func (s Scenario) TotalFrames() int {
	total := 0
	for _, camera := range s.Cameras {
		total += camera.Frames
	}
	return total
}
