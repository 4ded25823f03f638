package recognition

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"

	"github.com/MrCodeEU/facedetect/pkg/logging"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultReferenceMaxSide bounds the longer side of reference images before detection.
const DefaultReferenceMaxSide = 1600

// JPEGDetector detects faces in JPEG data. *DlibDetector implements it.
type JPEGDetector interface {
	DetectJPEG(data []byte) ([]Face, error)
}

// LoadReferenceJPEG reads an image file in any supported format (jpeg, png,
// gif, bmp, webp) and returns it JPEG encoded, downscaled so that its longer
// side does not exceed maxSide (when maxSide > 0).
func LoadReferenceJPEG(path string, maxSide int) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference image: %w", err)
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode reference image %s: %w", path, err)
	}

	resized := downscale(img, maxSide)
	if format == "jpeg" && resized == img {
		return raw, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("encode reference image %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

func downscale(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return img
	}

	var nw, nh int
	if w >= h {
		nw = maxSide
		nh = h * maxSide / w
	} else {
		nh = maxSide
		nw = w * maxSide / h
	}
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodeReference computes the descriptor of the face in a reference image.
// When the picture holds several faces the largest one is used.
func EncodeReference(det JPEGDetector, path string) (Descriptor, error) {
	data, err := LoadReferenceJPEG(path, DefaultReferenceMaxSide)
	if err != nil {
		return Descriptor{}, err
	}

	faces, err := det.DetectJPEG(data)
	if err != nil {
		return Descriptor{}, err
	}
	if len(faces) == 0 {
		return Descriptor{}, fmt.Errorf("%w in %s", ErrNoFaceDetected, path)
	}

	idx := Largest(faces)
	if len(faces) > 1 {
		logging.Warnf("Reference image %s holds %d faces, using the largest", path, len(faces))
	}
	if !faces[idx].HasDescriptor {
		return Descriptor{}, ErrNoDescriptor
	}
	return faces[idx].Descriptor, nil
}
