package model

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/cyclopcam/logs"
	"gopkg.in/yaml.v3"
)

// COCONames are the 80 class names of the COCO detection benchmark in YOLO
// order (no background class).
var COCONames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat", "traffic light",
	"fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse", "sheep", "cow",
	"elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie", "suitcase", "frisbee",
	"skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove", "skateboard", "surfboard",
	"tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon", "bowl", "banana", "apple",
	"sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair", "couch",
	"potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse", "remote", "keyboard", "cell phone",
	"microwave", "oven", "toaster", "sink", "refrigerator", "book", "clock", "vase", "scissors", "teddy bear",
	"hair drier", "toothbrush",
}

// LoadNames reads class names from a dataset YAML file with a "names" list
// or id→name map, or from a plain text file with one name per line.
func LoadNames(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	names, found, err := parseYAMLNames(data)
	if found {
		if err != nil {
			return nil, fmt.Errorf("invalid names in %v: %w", path, err)
		}
		return names, nil
	}
	names = parseTextNames(data)
	if len(names) == 0 {
		return nil, fmt.Errorf("no class names in %v", path)
	}
	return names, nil
}

// NamesOrDefault loads names from path and falls back to COCONames when the
// file does not exist.
func NamesOrDefault(log logs.Log, path string) ([]string, error) {
	if path == "" {
		return COCONames, nil
	}
	names, err := LoadNames(path)
	if os.IsNotExist(err) {
		log.Warnf("Names file %v not found, using built-in COCO names", path)
		return COCONames, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load class names: %w", err)
	}
	return names, nil
}

// parseYAMLNames reports found when data is a YAML document with a names
// key, in which case err tells whether the names themselves are valid.
func parseYAMLNames(data []byte) (names []string, found bool, err error) {
	var doc struct {
		Names yaml.Node `yaml:"names"`
	}
	if yaml.Unmarshal(data, &doc) != nil || doc.Names.Kind == 0 {
		return nil, false, nil
	}
	switch doc.Names.Kind {
	case yaml.SequenceNode:
		err = doc.Names.Decode(&names)
		return names, true, err
	case yaml.MappingNode:
		var byID map[int]string
		if err := doc.Names.Decode(&byID); err != nil {
			return nil, true, err
		}
		names = make([]string, len(byID))
		for id, name := range byID {
			if id < 0 || id >= len(names) {
				return nil, true, fmt.Errorf("class id %d is not contiguous", id)
			}
			names[id] = name
		}
		return names, true, nil
	default:
		return nil, true, fmt.Errorf("names must be a list or a map")
	}
}

func parseTextNames(data []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			names = append(names, line)
		}
	}
	return names
}
