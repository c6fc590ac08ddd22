// Package presence answers whether a named object appears in a set of
// detected labels at least a minimum number of times.
package presence

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/objectrekognition/rekognition-server/pkg/model"
)

// ErrInvalidCount is returned by ParseCount for values that are not
// non-negative integers.
var ErrInvalidCount = errors.New("count must be a non-negative integer")

// Result is the outcome of Evaluate.
type Result struct {
	Found bool `json:"found"`
	Count int  `json:"number_of_objects_found"`
}

// Evaluate counts the occurrences of target in labels. A matching label
// contributes its number of instances, or 1 when it was detected at scene
// level only. Names are compared with Unicode case folding.
//
// Found follows the rule (minCount == 0 && count == 0) || count >= minCount,
// which makes every query with minCount == 0 succeed.
func Evaluate(labels model.LabelSet, target string, minCount int) Result {
	want := normalize(target)

	count := 0
	for _, label := range labels {
		if normalize(label.Name) != want {
			continue
		}
		if n := len(label.Instances); n > 0 {
			count += n
		} else {
			count++
		}
	}

	return Result{
		Found: (minCount == 0 && count == 0) || count >= minCount,
		Count: count,
	}
}

func normalize(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// ParseCount decodes a minimum count sent either as a JSON number or as a
// numeric string.
func ParseCount(raw json.RawMessage) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, ErrInvalidCount
	}

	var text string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, ErrInvalidCount
		}
		text = strings.TrimSpace(text)
	} else {
		text = string(raw)
	}

	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		// Accept integral floats such as 2.0 or 1e1.
		f, ferr := strconv.ParseFloat(text, 64)
		if ferr != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
			return 0, ErrInvalidCount
		}
		if f < 0 || f > math.MaxInt32 {
			return 0, ErrInvalidCount
		}
		return int(f), nil
	}
	if n < 0 || n > math.MaxInt32 {
		return 0, ErrInvalidCount
	}
	return int(n), nil
}
