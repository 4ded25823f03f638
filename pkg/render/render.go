// Package render draws detection results onto frames and shows or records
// the annotated frames with OpenCV.
package render

import (
	"image"
	"image/color"

	"github.com/MrCodeEU/facedetect/pkg/recognition"
	"gocv.io/x/gocv"
)

// Style controls colors and line widths.
type Style struct {
	BoxColor     color.RGBA
	TextColor    color.RGBA
	FeatureColor color.RGBA
	Thickness    int
	Font         gocv.HersheyFont
	FontScale    float64
}

// DefaultStyle draws red boxes with white labels and green landmark lines.
func DefaultStyle() Style {
	return Style{
		BoxColor:     color.RGBA{R: 255, A: 255},
		TextColor:    color.RGBA{R: 255, G: 255, B: 255, A: 255},
		FeatureColor: color.RGBA{G: 255, A: 255},
		Thickness:    2,
		Font:         gocv.FontHersheyDuplex,
		FontScale:    0.6,
	}
}

// Options selects what Annotate draws.
type Options struct {
	Boxes    bool
	Labels   bool
	Features []string
	Style    Style
}

// Annotate draws landmark features, then boxes and label plates, onto mat.
func Annotate(mat *gocv.Mat, faces []recognition.Face, opts Options) {
	if mat == nil || mat.Empty() || len(faces) == 0 {
		return
	}
	style := opts.Style
	if style.Thickness == 0 {
		style = DefaultStyle()
	}

	for _, f := range faces {
		if len(opts.Features) > 0 {
			for _, g := range recognition.Features(f.Landmarks, opts.Features) {
				drawFeature(mat, g, style)
			}
		}
		if opts.Boxes {
			gocv.Rectangle(mat, f.Rect, style.BoxColor, style.Thickness)
			if opts.Labels && f.Label != "" {
				drawLabel(mat, f.Rect, f.Label, style)
			}
		}
	}
}

func drawFeature(mat *gocv.Mat, g recognition.FeatureGroup, style Style) {
	if len(g.Points) == 1 {
		gocv.Circle(mat, g.Points[0], style.Thickness+1, style.FeatureColor, -1)
		return
	}
	for _, seg := range segments(g) {
		gocv.Line(mat, seg[0], seg[1], style.FeatureColor, style.Thickness)
	}
}

// segments returns the line segments of a feature polyline.
func segments(g recognition.FeatureGroup) [][2]image.Point {
	n := len(g.Points)
	if n < 2 {
		return nil
	}
	out := make([][2]image.Point, 0, n)
	for i := 0; i < n-1; i++ {
		out = append(out, [2]image.Point{g.Points[i], g.Points[i+1]})
	}
	if g.Closed && n > 2 {
		out = append(out, [2]image.Point{g.Points[n-1], g.Points[0]})
	}
	return out
}

func drawLabel(mat *gocv.Mat, box image.Rectangle, text string, style Style) {
	size := gocv.GetTextSize(text, style.Font, style.FontScale, 1)
	plate, origin := labelPlate(box, size)
	gocv.Rectangle(mat, plate, style.BoxColor, -1)
	gocv.PutText(mat, text, origin, style.Font, style.FontScale, style.TextColor, 1)
}

// labelPlate places a filled plate along the bottom edge of the box, at
// least as wide as the text, and returns the text baseline origin.
func labelPlate(box image.Rectangle, text image.Point) (plate image.Rectangle, origin image.Point) {
	const pad = 6
	height := text.Y + 2*pad
	width := box.Dx()
	if text.X+2*pad > width {
		width = text.X + 2*pad
	}
	plate = image.Rect(box.Min.X, box.Max.Y-height, box.Min.X+width, box.Max.Y)
	origin = image.Pt(box.Min.X+pad, box.Max.Y-pad)
	return plate, origin
}
