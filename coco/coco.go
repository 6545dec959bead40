// Package coco converts detections into COCO evaluation records.
package coco

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/nvr-ai/detect-bench/models/postprocess"
)

// coco80to91 maps the 80 contiguous YOLO class ids to the sparse category
// ids of the COCO 2017 annotations.
var coco80to91 = [80]int{
	1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 13, 14, 15, 16, 17, 18, 19, 20, 21,
	22, 23, 24, 25, 27, 28, 31, 32, 33, 34, 35, 36, 37, 38, 39, 40, 41, 42, 43, 44,
	46, 47, 48, 49, 50, 51, 52, 53, 54, 55, 56, 57, 58, 59, 60, 61, 62, 63, 64, 65,
	67, 70, 72, 73, 74, 75, 76, 77, 78, 79, 80, 81, 82, 84, 85, 86, 87, 88, 89, 90,
}

// CategoryID maps a YOLO class id in [0, 80) to its COCO category id.
func CategoryID(class int) (int, error) {
	if class < 0 || class >= len(coco80to91) {
		return 0, fmt.Errorf("class %d is outside the 80 COCO classes", class)
	}
	return coco80to91[class], nil
}

// ImageID identifies an image in a results file. COCO file names are numeric
// and serialize as integers; other names fall back to the file stem.
type ImageID struct {
	Num int64
	Str string
}

// ImageIDFromPath derives the id from the file stem.
func ImageIDFromPath(path string) ImageID {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if n, err := strconv.ParseInt(stem, 10, 64); err == nil {
		return ImageID{Num: n}
	}
	return ImageID{Str: stem}
}

func (id ImageID) String() string {
	if id.Str != "" {
		return id.Str
	}
	return strconv.FormatInt(id.Num, 10)
}

func (id ImageID) MarshalJSON() ([]byte, error) {
	if id.Str != "" {
		return json.Marshal(id.Str)
	}
	return []byte(strconv.FormatInt(id.Num, 10)), nil
}

func (id *ImageID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		*id = ImageID{}
		return json.Unmarshal(b, &id.Str)
	}
	*id = ImageID{}
	return json.Unmarshal(b, &id.Num)
}

// Record is one detection in the COCO results format.
type Record struct {
	ImageID    ImageID    `json:"image_id"`
	CategoryID int        `json:"category_id"`
	BBox       [4]float64 `json:"bbox"`
	Score      float64    `json:"score"`
}

// NewRecords converts the detections of one image, boxes in absolute pixels
// of that image, to records with [x, y, w, h] boxes.
//
// Arguments:
//   - path: The image file, used for the image id.
//   - results: Detections with class ids in [0, 80).
//
// Returns:
//   - []Record: One record per detection.
//   - error: An error if a class id cannot be mapped.
func NewRecords(path string, results []postprocess.Result) ([]Record, error) {
	id := ImageIDFromPath(path)
	records := make([]Record, 0, len(results))
	for _, r := range results {
		cat, err := CategoryID(r.Class)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", filepath.Base(path), err)
		}
		records = append(records, Record{
			ImageID:    id,
			CategoryID: cat,
			BBox: [4]float64{
				round(float64(r.Box.X1), 3),
				round(float64(r.Box.Y1), 3),
				round(float64(r.Box.Width()), 3),
				round(float64(r.Box.Height()), 3),
			},
			Score: round(float64(r.Score), 5),
		})
	}
	return records, nil
}

func round(v float64, digits int) float64 {
	p := math.Pow10(digits)
	return math.Round(v*p) / p
}

// Glob lists the *.jpg images of a dataset directory in name order.
func Glob(dir string) ([]string, error) {
	if st, err := os.Stat(dir); err != nil {
		return nil, err
	} else if !st.IsDir() {
		return nil, fmt.Errorf("%v is not a directory", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ResultsPath returns <dir>/<model file name>_predictions.json.
func ResultsPath(dir, modelPath string) string {
	return filepath.Join(dir, filepath.Base(modelPath)+"_predictions.json")
}

// WriteJSON writes records as a single JSON array, creating the parent
// directory if needed. An empty slice produces "[]".
func WriteJSON(path string, records []Record) error {
	if records == nil {
		records = []Record{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}
	b, err := json.MarshalIndent(records, "", " ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
