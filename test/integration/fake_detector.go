package integration

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/objectrekognition/rekognition-server/pkg/detection"
	"github.com/objectrekognition/rekognition-server/pkg/model"
)

// fakeDetector reads labels from the image bytes themselves. The content
// "Car:3,Sky:0" yields a Car label with three instances and a scene-level
// Sky label. Content starting with "error" fails detection.
type fakeDetector struct {
	mu    sync.Mutex
	calls map[string]int
}

var _ detection.Detector = (*fakeDetector)(nil)

func newFakeDetector() *fakeDetector {
	return &fakeDetector{calls: make(map[string]int)}
}

func (d *fakeDetector) Analyze(ctx context.Context, key string, data []byte) (model.LabelSet, error) {
	d.mu.Lock()
	d.calls[key]++
	d.mu.Unlock()

	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "error") {
		return nil, &detection.DetectionError{Key: key, Message: text}
	}

	labels := model.LabelSet{}
	for _, field := range strings.Split(text, ",") {
		name, countText, ok := strings.Cut(strings.TrimSpace(field), ":")
		if !ok {
			continue
		}
		count, err := strconv.Atoi(countText)
		if err != nil {
			return nil, &detection.DetectionError{Key: key, Message: fmt.Sprintf("bad count %q", countText)}
		}

		label := model.Label{Name: name, Confidence: 99}
		for i := 0; i < count; i++ {
			label.Instances = append(label.Instances, model.Instance{Confidence: 95})
		}
		labels = append(labels, label)
	}
	return labels, nil
}

// Calls returns the total number of Analyze calls.
func (d *fakeDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 0
	for _, n := range d.calls {
		total += n
	}
	return total
}

func (d *fakeDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = make(map[string]int)
}
