package bgmask

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
)

type Options struct {
	// Euclidean RGB distance (channels in [0,255]) to the reference color
	// below which a pixel is treated as background.
	// Ideal start: 30. Higher values eat into anti-aliased edges.
	BackgroundTolerance float64
	// Euclidean RGB distance to pure black below which a pixel is treated
	// as background regardless of the reference color.
	// Ideal start: 50. Set to 0 to disable black matching.
	BlackTolerance float64
}

func DefaultOptions() Options {
	return Options{
		BackgroundTolerance: 30,
		BlackTolerance:      50,
	}
}

func (o Options) Validate() error {
	if math.IsNaN(o.BackgroundTolerance) || o.BackgroundTolerance < 0 {
		return fmt.Errorf("background tolerance must be >= 0, got %v", o.BackgroundTolerance)
	}
	if math.IsNaN(o.BlackTolerance) || o.BlackTolerance < 0 {
		return fmt.Errorf("black tolerance must be >= 0, got %v", o.BlackTolerance)
	}
	return nil
}

// Stats describes a single Mask call.
type Stats struct {
	Reference colorful.Color
	Total     int
	Masked    int
}

// Fraction returns the share of pixels made transparent, 0 for empty images.
func (s Stats) Fraction() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Masked) / float64(s.Total)
}

// distSq returns the squared Euclidean distance between the RGB parts of a and b.
func distSq(a, b color.NRGBA) int {
	dr := int(a.R) - int(b.R)
	dg := int(a.G) - int(b.G)
	db := int(a.B) - int(b.B)
	return dr*dr + dg*dg + db*db
}

// within reports whether sqrt(d2) < tol. Squared integer distances keep the
// boundary exact: a distance equal to the tolerance is not within it.
func within(d2 int, tol float64) bool {
	return float64(d2) < tol*tol
}

var black = color.NRGBA{A: 255}

// ShouldMask reports whether px matches the background: it is closer than
// BackgroundTolerance to ref or closer than BlackTolerance to black.
// Alpha of either color is ignored.
func ShouldMask(px, ref color.NRGBA, opt Options) bool {
	return within(distSq(px, ref), opt.BackgroundTolerance) ||
		within(distSq(px, black), opt.BlackTolerance)
}

// ReferenceColor returns the top-left pixel of img as straight (non-premultiplied) RGBA.
func ReferenceColor(img image.Image) color.NRGBA {
	b := img.Bounds()
	if b.Empty() {
		return color.NRGBA{}
	}
	return straight(img.At(b.Min.X, b.Min.Y))
}

// straight converts c to 8-bit straight alpha. Straight-alpha colors keep
// their RGB even when alpha is 0; anything else goes through the
// premultiplied RGBA() path.
func straight(c color.Color) color.NRGBA {
	switch c := c.(type) {
	case color.NRGBA:
		return c
	case color.NRGBA64:
		return color.NRGBA{R: uint8(c.R >> 8), G: uint8(c.G >> 8), B: uint8(c.B >> 8), A: uint8(c.A >> 8)}
	}
	return color.NRGBAModel.Convert(c).(color.NRGBA)
}

// toNRGBA copies src into a fresh NRGBA buffer with the same bounds.
// Straight-alpha sources (NRGBA, NRGBA64, paletted images with transparent
// entries) are copied per channel; opaque and premultiplied models go
// through draw.
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	switch s := src.(type) {
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			copy(dst.Pix[dst.PixOffset(b.Min.X, y):dst.PixOffset(b.Max.X, y)],
				s.Pix[s.PixOffset(b.Min.X, y):s.PixOffset(b.Max.X, y)])
		}
	case *image.Paletted:
		table := make([]color.NRGBA, len(s.Palette))
		for i, c := range s.Palette {
			table[i] = straight(c)
		}
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				if idx := int(s.ColorIndexAt(x, y)); idx < len(table) {
					dst.SetNRGBA(x, y, table[idx])
				}
			}
		}
	case *image.NRGBA64:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				dst.SetNRGBA(x, y, straight(s.NRGBA64At(x, y)))
			}
		}
	default:
		draw.Draw(dst, b, src, b.Min, draw.Src)
	}
	return dst
}

// Mask returns a copy of src in which every background pixel has alpha 0.
// RGB is never changed and non-matching pixels are copied unchanged.
// The reference color is read once from the top-left pixel before any change.
func Mask(src image.Image, opt Options) (*image.NRGBA, Stats) {
	out := toNRGBA(src)
	b := out.Bounds()
	if b.Empty() {
		return out, Stats{}
	}

	ref := ReferenceColor(out)
	refCol, _ := colorful.MakeColor(color.NRGBA{R: ref.R, G: ref.G, B: ref.B, A: 255})
	stats := Stats{Reference: refCol, Total: b.Dx() * b.Dy()}

	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := out.Pix[out.PixOffset(b.Min.X, y):out.PixOffset(b.Max.X, y)]
		for i := 0; i < len(row); i += 4 {
			px := color.NRGBA{R: row[i], G: row[i+1], B: row[i+2], A: row[i+3]}
			if ShouldMask(px, ref, opt) {
				row[i+3] = 0
				stats.Masked++
			}
		}
	}
	Logger().Debug("bgmask: masked image",
		"size", b.Size(), "reference", refCol.Hex(), "masked", stats.Masked, "total", stats.Total)
	return out, stats
}
