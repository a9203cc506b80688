package utils

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"slices"
	"strings"

	"github.com/cenkalti/dominantcolor"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/muesli/clusters"
	"github.com/muesli/kmeans"
)

type PaletteMethod int

const (
	PaletteMethodDominantColor PaletteMethod = iota
	PaletteMethodKMeans
)

func (m PaletteMethod) String() string {
	switch m {
	case PaletteMethodKMeans:
		return "kmeans"
	default:
		return "dominantcolor"
	}
}

func ParsePaletteMethod(s string) (PaletteMethod, error) {
	switch strings.ToLower(s) {
	case "", "dominantcolor", "dominant":
		return PaletteMethodDominantColor, nil
	case "kmeans":
		return PaletteMethodKMeans, nil
	}
	return 0, fmt.Errorf("unknown palette method %q (want dominantcolor or kmeans)", s)
}

type weightedColor struct {
	Col    colorful.Color
	Weight float64
}

// SortPaletteByBrightness orders colors from darkest to brightest by relative luminance.
func SortPaletteByBrightness(palette []colorful.Color) {
	slices.SortFunc(palette, func(a, b colorful.Color) int {
		ya, yb := luminance(a), luminance(b)
		switch {
		case ya < yb:
			return -1
		case ya > yb:
			return 1
		}
		return 0
	})
}

func luminance(c colorful.Color) float64 {
	r, g, b := c.LinearRgb()
	return 0.2126*r + 0.7152*g + 0.0722*b
}

// opaquePixels packs the non-transparent pixels of img into a square image,
// repeating pixels to fill the last row. It returns nil when img has none.
func opaquePixels(img image.Image) *image.NRGBA {
	b := img.Bounds()
	var px []color.NRGBA
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A != 0 {
				px = append(px, color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255})
			}
		}
	}
	if len(px) == 0 {
		return nil
	}
	side := int(math.Ceil(math.Sqrt(float64(len(px)))))
	out := image.NewNRGBA(image.Rect(0, 0, side, side))
	for i := range side * side {
		out.SetNRGBA(i%side, i/side, px[i%len(px)])
	}
	return out
}

// ExtractDominantPalette picks up to k diverse colors from dominantcolor's
// weighted candidates over the opaque pixels of img. Fully transparent
// images yield nil.
func ExtractDominantPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}
	opaque := opaquePixels(img)
	if opaque == nil {
		return nil
	}

	candidates := dominantcolor.FindWeight(opaque, max(24, k*8))
	if len(candidates) == 0 {
		return nil
	}

	weighted := make([]weightedColor, 0, len(candidates))
	for _, c := range candidates {
		col, _ := colorful.MakeColor(color.RGBA{R: c.RGBA.R, G: c.RGBA.G, B: c.RGBA.B, A: 255})
		weighted = append(weighted, weightedColor{Col: col.Clamped(), Weight: max(c.Weight, 1e-6)})
	}
	return spreadColors(weighted, k)
}

// spreadColors returns up to k colors from cands. The heaviest color comes
// first; every following pick is the candidate farthest (in Lab) from all
// earlier picks, with light candidates discounted so that a stray outlier
// does not beat a large region of a slightly closer color.
func spreadColors(cands []weightedColor, k int) []colorful.Color {
	k = min(k, len(cands))
	if k <= 0 {
		return nil
	}
	heaviest, maxW := 0, 0.0
	for i, c := range cands {
		if c.Weight > maxW {
			heaviest, maxW = i, c.Weight
		}
	}
	maxW = max(maxW, 1e-6)

	// nearest[i] is the Lab distance from cands[i] to the closest pick so
	// far, or -1 once cands[i] has been picked.
	nearest := make([]float64, len(cands))
	for i := range nearest {
		nearest[i] = math.Inf(1)
	}

	out := make([]colorful.Color, 0, k)
	next := heaviest
	for {
		pick := cands[next].Col.Clamped()
		out = append(out, pick)
		nearest[next] = -1
		if len(out) == k {
			return out
		}

		next = -1
		best := -1.0
		for i, c := range cands {
			if nearest[i] < 0 {
				continue
			}
			nearest[i] = min(nearest[i], c.Col.Clamped().DistanceLab(pick))
			score := nearest[i] * (0.55 + 0.45*math.Sqrt(max(c.Weight, 0)/maxW))
			if score > best {
				next, best = i, score
			}
		}
		if next < 0 {
			return out
		}
	}
}

// ExtractKMeansPalette clusters the opaque pixels of img and picks up to k
// diverse cluster centers. Transparent pixels are skipped.
func ExtractKMeansPalette(img image.Image, k int) []colorful.Color {
	if k <= 0 {
		return nil
	}
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	if width == 0 || height == 0 {
		return nil
	}

	// Subsample to keep kmeans tractable on large images.
	const maxSamples = 12000
	step := 1
	if width*height > maxSamples {
		step = int(math.Sqrt(float64(width*height)/maxSamples)) + 1
	}

	dataset := make(clusters.Observations, 0, min(width*height, maxSamples))
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.A == 0 {
				continue
			}
			dataset = append(dataset, clusters.Coordinates{
				float64(c.R) / 255,
				float64(c.G) / 255,
				float64(c.B) / 255,
			})
		}
	}
	if len(dataset) == 0 {
		return nil
	}

	workK := min(max(k*4, k+2), len(dataset))
	cc, err := kmeans.New().Partition(dataset, workK)
	if err != nil || len(cc) == 0 {
		return nil
	}

	// Most populated clusters first.
	slices.SortFunc(cc, func(a, b clusters.Cluster) int {
		return len(b.Observations) - len(a.Observations)
	})

	weighted := make([]weightedColor, 0, len(cc))
	for _, c := range cc {
		if len(c.Center) < 3 || len(c.Observations) == 0 {
			continue
		}
		col := colorful.Color{R: c.Center[0], G: c.Center[1], B: c.Center[2]}.Clamped()
		weighted = append(weighted, weightedColor{Col: col, Weight: float64(len(c.Observations))})
	}
	return spreadColors(weighted, k)
}

// ExtractPalette summarizes the colors of img with the requested method and
// returns the method that produced the result. An empty kmeans result falls
// back to dominantcolor.
func ExtractPalette(img image.Image, k int, method PaletteMethod) ([]colorful.Color, PaletteMethod) {
	if method == PaletteMethodKMeans {
		if p := ExtractKMeansPalette(img, k); len(p) != 0 {
			return p, PaletteMethodKMeans
		}
	}
	return ExtractDominantPalette(img, k), PaletteMethodDominantColor
}

// HexPalette formats palette as "#rrggbb" strings.
func HexPalette(palette []colorful.Color) []string {
	out := make([]string, len(palette))
	for i, c := range palette {
		out[i] = c.Clamped().Hex()
	}
	return out
}

// SavePalette writes palette as a strip of square swatches.
func SavePalette(palette []colorful.Color, tileSize int, filename string) error {
	if len(palette) == 0 {
		return &EncodeError{Path: filename, Err: fmt.Errorf("empty palette")}
	}
	if tileSize <= 0 {
		tileSize = 64
	}

	img := image.NewNRGBA(image.Rect(0, 0, tileSize*len(palette), tileSize))
	for i, c := range palette {
		r, g, b := c.Clamped().RGB255()
		sw := color.NRGBA{R: r, G: g, B: b, A: 255}
		for y := range tileSize {
			for x := i * tileSize; x < (i+1)*tileSize; x++ {
				img.SetNRGBA(x, y, sw)
			}
		}
	}
	return SaveImage(img, filename)
}
