package recognition

import (
	"math"
	"sort"
	"sync"
)

// Gallery holds the named reference descriptors used to label faces.
type Gallery struct {
	mu          sync.RWMutex
	names       []string
	descriptors []Descriptor
	tolerance   float64
}

// NewGallery creates an empty gallery. Faces further than tolerance from
// every reference stay unknown; 0.6 is the usual dlib threshold.
func NewGallery(tolerance float64) *Gallery {
	return &Gallery{tolerance: tolerance}
}

// Add registers a reference descriptor under name. A name may hold several descriptors.
func (g *Gallery) Add(name string, d Descriptor) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.names = append(g.names, name)
	g.descriptors = append(g.descriptors, d)
}

// Len returns the number of reference descriptors.
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.descriptors)
}

// Names returns the distinct reference names, sorted.
func (g *Gallery) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool, len(g.names))
	var out []string
	for _, n := range g.names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Identify returns the closest reference name, its distance, and whether
// the distance is within tolerance.
func (g *Gallery) Identify(query Descriptor) (string, float64, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	idx, dist, ok := FindBestMatch(query, g.descriptors, g.tolerance)
	if idx < 0 {
		return "", dist, false
	}
	return g.names[idx], dist, ok
}

// Label sets Label and Distance on every face. Faces without a descriptor or
// without a match within tolerance are labelled UnknownLabel.
func (g *Gallery) Label(faces []Face) {
	for i := range faces {
		faces[i].Label = UnknownLabel
		faces[i].Distance = math.MaxFloat64
		if !faces[i].HasDescriptor {
			continue
		}
		name, dist, ok := g.Identify(faces[i].Descriptor)
		faces[i].Distance = dist
		if ok {
			faces[i].Label = name
		}
	}
}

// FindBestMatch finds the gallery entry closest to query.
// Returns the index of the best match, the distance, and whether it's within tolerance.
func FindBestMatch(query Descriptor, gallery []Descriptor, tolerance float64) (int, float64, bool) {
	if len(gallery) == 0 {
		return -1, math.MaxFloat64, false
	}

	bestIdx := 0
	bestDist := math.MaxFloat64

	for i, d := range gallery {
		dist := EuclideanDistance(query, d)
		if dist < bestDist {
			bestDist = dist
			bestIdx = i
		}
	}

	return bestIdx, bestDist, bestDist <= tolerance
}

// EuclideanDistance calculates the Euclidean distance between two descriptors.
func EuclideanDistance(d1, d2 Descriptor) float64 {
	var sum float64
	for i := range d1 {
		diff := float64(d1[i] - d2[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
