package recognition

import (
	"image"

	"github.com/MrCodeEU/facedetect/pkg/config"
)

// FeatureGroup is a named run of landmark points, drawn as a polyline.
type FeatureGroup struct {
	Name   string
	Points []image.Point
	Closed bool
}

type featureDef struct {
	indices []int
	closed  bool
}

func span(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}

// dlib 68-point (iBUG 300-W) layout.
var layout68 = map[string]featureDef{
	"chin":          {indices: span(0, 17)},
	"left_eyebrow":  {indices: span(17, 22)},
	"right_eyebrow": {indices: span(22, 27)},
	"nose_bridge":   {indices: span(27, 31)},
	"nose_tip":      {indices: span(31, 36)},
	"left_eye":      {indices: span(36, 42), closed: true},
	"right_eye":     {indices: span(42, 48), closed: true},
	"top_lip":       {indices: append(span(48, 55), 64, 63, 62, 61, 60), closed: true},
	"bottom_lip":    {indices: append(span(54, 60), 48, 60, 67, 66, 65, 64), closed: true},
}

// dlib 5-point layout: two corners per eye and the base of the nose.
var layout5 = map[string]featureDef{
	"right_eye": {indices: []int{0, 1}},
	"left_eye":  {indices: []int{2, 3}},
	"nose_tip":  {indices: []int{4}},
}

func layoutFor(n int) map[string]featureDef {
	switch n {
	case 68:
		return layout68
	case 5:
		return layout5
	default:
		return nil
	}
}

// AvailableFeatures lists the feature names a landmark set of size n provides,
// in the order of config.FaceFeatureNames.
func AvailableFeatures(n int) []string {
	layout := layoutFor(n)
	var out []string
	for _, name := range config.FaceFeatureNames {
		if _, ok := layout[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Features groups landmarks into the requested features. "face" selects every
// available feature. Features the landmark layout cannot provide are skipped.
func Features(landmarks []image.Point, requested []string) []FeatureGroup {
	layout := layoutFor(len(landmarks))
	if layout == nil {
		return nil
	}

	want := make(map[string]bool, len(requested))
	for _, r := range requested {
		if r == config.FeatureAll {
			for name := range layout {
				want[name] = true
			}
			continue
		}
		want[r] = true
	}

	var groups []FeatureGroup
	for _, name := range config.FaceFeatureNames {
		def, ok := layout[name]
		if !ok || !want[name] {
			continue
		}
		pts := make([]image.Point, len(def.indices))
		for i, idx := range def.indices {
			pts[i] = landmarks[idx]
		}
		groups = append(groups, FeatureGroup{Name: name, Points: pts, Closed: def.closed})
	}
	return groups
}

// MissingFeatures returns the requested names a layout of size n cannot draw,
// in the order of config.FaceFeatureNames. "face" asks for every feature.
func MissingFeatures(n int, requested []string) []string {
	layout := layoutFor(n)
	want := make(map[string]bool, len(requested))
	for _, r := range requested {
		want[r] = true
	}

	var out []string
	for _, name := range config.FaceFeatureNames {
		if name == config.FeatureAll || !(want[name] || want[config.FeatureAll]) {
			continue
		}
		if _, ok := layout[name]; !ok {
			out = append(out, name)
		}
	}
	return out
}
