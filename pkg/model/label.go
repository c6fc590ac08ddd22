package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// BoundingBox locates an instance as ratios of the overall image size.
type BoundingBox struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
}

// Instance is a single localized occurrence of a label.
type Instance struct {
	BoundingBox *BoundingBox `json:"bounding_box,omitempty"`
	Confidence  float64      `json:"confidence"`
}

// Label is a named category attached to an image by the detection provider.
// A label with no instances was detected at scene level only.
type Label struct {
	Name       string     `json:"name"`
	Confidence float64    `json:"confidence"`
	Instances  []Instance `json:"instances"`
	Parents    []string   `json:"parents"`
}

// LabelSet is the ordered list of labels detected for one image.
type LabelSet []Label

// Marshal serializes the set as a JSON array. A nil set encodes as [].
func (s LabelSet) Marshal() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]Label(s))
}

// UnmarshalLabelSet parses the output of LabelSet.Marshal. The result is
// never nil.
func UnmarshalLabelSet(data []byte) (LabelSet, error) {
	var labels []Label
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("failed to decode label set: %w", err)
	}
	if labels == nil {
		labels = []Label{}
	}
	return LabelSet(labels), nil
}

// Value implements driver.Valuer.
func (s LabelSet) Value() (driver.Value, error) {
	data, err := s.Marshal()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *LabelSet) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*s = LabelSet{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into LabelSet", src)
	}

	labels, err := UnmarshalLabelSet(data)
	if err != nil {
		return err
	}
	*s = labels
	return nil
}
