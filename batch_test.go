package bgmask

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/setanarut/bgmask/utils"
)

// sprite returns a 4×4 image on a uniform blue background with a 2×2 red
// square in the middle.
func sprite() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			img.SetNRGBA(x, y, color.NRGBA{40, 60, 220, 255})
		}
	}
	for y := 1; y < 3; y++ {
		for x := 1; x < 3; x++ {
			img.SetNRGBA(x, y, color.NRGBA{230, 30, 30, 255})
		}
	}
	return img
}

// gradient returns a 16×16 image whose only background-colored pixel is the
// top-left one.
func gradient() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for y := range 16 {
		for x := range 16 {
			img.SetNRGBA(x, y, color.NRGBA{uint8(100 + x*8), uint8(y * 10), 150, 255})
		}
	}
	img.SetNRGBA(0, 0, color.NRGBA{40, 60, 220, 255})
	return img
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func readNRGBA(t *testing.T, path string) *image.NRGBA {
	t.Helper()
	img, err := utils.ReadImage(path)
	if err != nil {
		t.Fatal(err)
	}
	n, ok := img.(*image.NRGBA)
	if !ok {
		t.Fatalf("%s decoded as %T, want *image.NRGBA", path, img)
	}
	return n
}

func checkSpriteMasked(t *testing.T, img *image.NRGBA) {
	t.Helper()
	if img.Bounds() != image.Rect(0, 0, 4, 4) {
		t.Fatalf("bounds = %v", img.Bounds())
	}
	if got, want := img.NRGBAAt(0, 0), (color.NRGBA{40, 60, 220, 0}); got != want {
		t.Errorf("background = %v, want %v", got, want)
	}
	if got, want := img.NRGBAAt(1, 1), (color.NRGBA{230, 30, 30, 255}); got != want {
		t.Errorf("foreground = %v, want %v", got, want)
	}
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	orig := Logger()
	t.Cleanup(func() { SetLogger(orig) })
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return &buf
}

func TestRunSkipsCorruptFile(t *testing.T) {
	logs := captureLogs(t)
	root := t.TempDir()
	good := filepath.Join(root, "good.png")
	bad := filepath.Join(root, "bad.png")
	writePNG(t, good, sprite())
	if err := os.WriteFile(bad, []byte("not a png"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background(), DefaultConfig(root))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(report.Results))
	}

	failed := report.Failed()
	if len(failed) != 1 || failed[0].Path != bad {
		t.Fatalf("failed = %+v, want only %s", failed, bad)
	}
	var de *DecodeError
	if !errors.As(failed[0].Err, &de) || de.Path != bad {
		t.Errorf("err = %v, want *DecodeError for %s", failed[0].Err, bad)
	}

	ok := report.Succeeded()
	if len(ok) != 1 || ok[0].Path != good {
		t.Fatalf("succeeded = %+v, want only %s", ok, good)
	}
	if ok[0].Stats.Masked != 12 || ok[0].Stats.Total != 16 {
		t.Errorf("stats = %+v, want 12 of 16 masked", ok[0].Stats)
	}
	checkSpriteMasked(t, readNRGBA(t, good))

	if s := logs.String(); !strings.Contains(s, "bgmask: failed") || !strings.Contains(s, "bgmask: processed") {
		t.Errorf("missing progress lines in log:\n%s", s)
	}
}

func TestRunTwiceIsNoop(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.png")
	writePNG(t, path, sprite())

	if _, err := Run(context.Background(), DefaultConfig(root)); err != nil {
		t.Fatal(err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), DefaultConfig(root)); err != nil {
		t.Fatal(err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Error("second run changed the file")
	}
}

func TestRunOutputDir(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "in", "sub", "a.png")
	writePNG(t, src, sprite())
	orig, _ := os.ReadFile(src)

	cfg := DefaultConfig(filepath.Join(root, "in"))
	cfg.OutputDir = filepath.Join(root, "out")
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "out", "sub", "a.png")
	if len(report.Results) != 1 || report.Results[0].Output != want {
		t.Fatalf("results = %+v, want output %s", report.Results, want)
	}
	checkSpriteMasked(t, readNRGBA(t, want))

	after, _ := os.ReadFile(src)
	if !bytes.Equal(orig, after) {
		t.Error("original was modified")
	}
}

func TestRunOutputDirInsideRoot(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), sprite())
	writePNG(t, filepath.Join(root, "masked", "old.png"), sprite())

	cfg := DefaultConfig(root)
	cfg.OutputDir = filepath.Join(root, "masked")
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 1 || report.Results[0].Path != filepath.Join(root, "a.png") {
		t.Errorf("results = %+v, want only a.png", report.Results)
	}
}

func TestRunDryRun(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.png")
	writePNG(t, path, gradient())
	orig, _ := os.ReadFile(path)

	cfg := DefaultConfig(root)
	cfg.DryRun = true
	cfg.PaletteSize = 2
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 1 || report.Results[0].Stats.Masked != 1 {
		t.Fatalf("results = %+v", report.Results)
	}
	if len(report.Results[0].Palette) == 0 {
		t.Error("expected a foreground palette")
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(orig, after) {
		t.Error("dry run modified the file")
	}
}

func TestRunWorkersKeepOrder(t *testing.T) {
	root := t.TempDir()
	var want []string
	for i := range 12 {
		p := filepath.Join(root, fmt.Sprintf("img%02d.png", i))
		writePNG(t, p, sprite())
		want = append(want, p)
	}

	cfg := DefaultConfig(root)
	cfg.Workers = 4
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != len(want) {
		t.Fatalf("got %d results, want %d", len(report.Results), len(want))
	}
	for i, res := range report.Results {
		if res.Path != want[i] {
			t.Errorf("result %d = %s, want %s", i, res.Path, want[i])
		}
		if !res.OK() {
			t.Errorf("%s: %v", res.Path, res.Err)
		}
	}
}

func TestRunEncodeError(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "in", "a.png"), sprite())
	// A directory where the output file should go makes the final rename fail.
	if err := os.MkdirAll(filepath.Join(root, "out", "a.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultConfig(filepath.Join(root, "in"))
	cfg.OutputDir = filepath.Join(root, "out")
	report, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	failed := report.Failed()
	if len(failed) != 1 {
		t.Fatalf("failed = %+v, want 1", failed)
	}
	var ee *EncodeError
	if !errors.As(failed[0].Err, &ee) {
		t.Errorf("err = %v, want *EncodeError", failed[0].Err)
	}
}

func TestRunMissingRoot(t *testing.T) {
	report, err := Run(context.Background(), DefaultConfig(filepath.Join(t.TempDir(), "missing")))
	var de *DiscoveryError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *DiscoveryError", err)
	}
	if report == nil || len(report.Results) != 0 {
		t.Errorf("report = %+v, want empty", report)
	}
}

func TestRunCancelled(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "a.png"), sprite())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, DefaultConfig(root))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunInvalidOptions(t *testing.T) {
	cfg := DefaultConfig(t.TempDir())
	cfg.Options.BlackTolerance = -1
	if report, err := Run(context.Background(), cfg); err == nil || report != nil {
		t.Errorf("Run = %v, %v; want nil report and error", report, err)
	}
}

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.png")
	dst := filepath.Join(dir, "b.png")
	writePNG(t, src, sprite())

	res := ProcessFile(src, dst, DefaultOptions(), false)
	if !res.OK() {
		t.Fatal(res.Err)
	}
	checkSpriteMasked(t, readNRGBA(t, dst))

	res = ProcessFile(filepath.Join(dir, "missing.png"), dst, DefaultOptions(), false)
	var de *DecodeError
	if !errors.As(res.Err, &de) {
		t.Errorf("err = %v, want *DecodeError", res.Err)
	}
}

func TestReportSummary(t *testing.T) {
	r := &Report{Results: []FileResult{
		{Path: "a", Stats: Stats{Total: 4, Masked: 2}},
		{Path: "b", Stats: Stats{Total: 4, Masked: 4}},
		{Path: "c", Err: errors.New("boom")},
	}}
	s := r.Summary()
	if s.Files != 3 || s.Succeeded != 2 || s.Failed != 1 {
		t.Errorf("counts = %+v", s)
	}
	if s.MaskedPixels != 6 || s.Pixels != 8 {
		t.Errorf("pixels = %d/%d, want 6/8", s.MaskedPixels, s.Pixels)
	}
	if math.Abs(s.MeanFraction-0.75) > 1e-9 {
		t.Errorf("mean = %v, want 0.75", s.MeanFraction)
	}
	// Sample standard deviation of {0.5, 1}.
	if math.Abs(s.StdDevFraction-math.Sqrt(0.125)) > 1e-9 {
		t.Errorf("stddev = %v, want %v", s.StdDevFraction, math.Sqrt(0.125))
	}

	single := (&Report{Results: r.Results[:1]}).Summary()
	if single.MeanFraction != 0.5 || single.StdDevFraction != 0 {
		t.Errorf("single summary = %+v", single)
	}
}

func TestRunRewritesMislabeledJPEG(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "photo.png")
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, sprite(), &jpeg.Options{Quality: 100}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := Run(context.Background(), DefaultConfig(root))
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Results) != 1 || !report.Results[0].OK() {
		t.Fatalf("results = %+v, want one success", report.Results)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")) {
		t.Errorf("output is not PNG: % x", data[:min(8, len(data))])
	}
	if a := readNRGBA(t, path).NRGBAAt(0, 0).A; a != 0 {
		t.Errorf("background alpha = %d, want 0", a)
	}
}

func TestRunKeepsFileMode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	root := t.TempDir()
	path := filepath.Join(root, "a.png")
	writePNG(t, path, sprite())
	if err := os.Chmod(path, 0o640); err != nil {
		t.Fatal(err)
	}
	if _, err := Run(context.Background(), DefaultConfig(root)); err != nil {
		t.Fatal(err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := fi.Mode().Perm(); got != 0o640 {
		t.Errorf("mode = %o, want 640", got)
	}
}
