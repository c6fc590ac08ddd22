package presence

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectrekognition/rekognition-server/pkg/model"
)

func instances(n int) []model.Instance {
	out := make([]model.Instance, n)
	for i := range out {
		out[i] = model.Instance{Confidence: 90, BoundingBox: &model.BoundingBox{Width: 0.1, Height: 0.1}}
	}
	return out
}

func TestEvaluate(t *testing.T) {
	labels := model.LabelSet{
		{Name: "Dog", Instances: instances(2)},
		{Name: "Person", Instances: instances(3)},
		{Name: "Outdoors"},
		{Name: "Cat", Instances: []model.Instance{}},
	}

	tests := []struct {
		name      string
		target    string
		min       int
		wantFound bool
		wantCount int
	}{
		{name: "instances counted", target: "Dog", min: 2, wantFound: true, wantCount: 2},
		{name: "below threshold", target: "Dog", min: 3, wantFound: false, wantCount: 2},
		{name: "scene label counts once", target: "Outdoors", min: 1, wantFound: true, wantCount: 1},
		{name: "empty instances counts once", target: "cat", min: 1, wantFound: true, wantCount: 1},
		{name: "case insensitive", target: "pErSoN", min: 3, wantFound: true, wantCount: 3},
		{name: "surrounding whitespace", target: "  dog ", min: 1, wantFound: true, wantCount: 2},
		{name: "absent with zero minimum", target: "Car", min: 0, wantFound: true, wantCount: 0},
		{name: "absent with positive minimum", target: "Car", min: 1, wantFound: false, wantCount: 0},
		{name: "present with zero minimum", target: "Dog", min: 0, wantFound: true, wantCount: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(labels, tt.target, tt.min)
			assert.Equal(t, Result{Found: tt.wantFound, Count: tt.wantCount}, got)
		})
	}
}

func TestEvaluate_RuleGrid(t *testing.T) {
	for count := 0; count <= 4; count++ {
		for min := 0; min <= 4; min++ {
			t.Run(fmt.Sprintf("count=%d min=%d", count, min), func(t *testing.T) {
				var labels model.LabelSet
				if count > 0 {
					labels = model.LabelSet{{Name: "Dog", Instances: instances(count)}}
				}
				got := Evaluate(labels, "dog", min)
				assert.Equal(t, count, got.Count)
				assert.Equal(t, (min == 0 && count == 0) || count >= min, got.Found)
			})
		}
	}
}

func TestEvaluate_UnicodeFolding(t *testing.T) {
	labels := model.LabelSet{{Name: "Straße"}}
	assert.Equal(t, 1, Evaluate(labels, "STRASSE", 1).Count)
}

func TestEvaluate_MultipleEntries(t *testing.T) {
	labels := model.LabelSet{
		{Name: "Dog", Instances: instances(1)},
		{Name: "dog", Instances: instances(2)},
		{Name: "DOG"},
	}
	assert.Equal(t, Result{Found: true, Count: 4}, Evaluate(labels, "Dog", 4))
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: `0`, want: 0},
		{raw: `3`, want: 3},
		{raw: `"3"`, want: 3},
		{raw: `" 12 "`, want: 12},
		{raw: `2.0`, want: 2},
		{raw: `-1`, wantErr: true},
		{raw: `"-1"`, wantErr: true},
		{raw: `1.5`, wantErr: true},
		{raw: `"abc"`, wantErr: true},
		{raw: `""`, wantErr: true},
		{raw: `null`, wantErr: true},
		{raw: `true`, wantErr: true},
		{raw: `[1]`, wantErr: true},
		{raw: ``, wantErr: true},
		{raw: `1e30`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseCount(json.RawMessage(tt.raw))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidCount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
