package bgmask

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/setanarut/bgmask/utils"
	"gonum.org/v1/gonum/stat"
)

type Config struct {
	// Directory tree to scan for PNG files.
	Root string
	// When empty, files are overwritten in place. Otherwise results are
	// written under OutputDir, mirroring their path relative to Root.
	OutputDir string
	Options   Options
	// Number of files processed concurrently. Values below 1 mean 1.
	Workers int
	// Process and report without writing anything.
	DryRun bool
	// Number of foreground colors to report per file; 0 disables palettes.
	PaletteSize   int
	PaletteMethod utils.PaletteMethod
}

func DefaultConfig(root string) Config {
	return Config{
		Root:    root,
		Options: DefaultOptions(),
		Workers: 1,
	}
}

// FileResult is the outcome for one discovered file. Err is nil on success,
// otherwise a *DecodeError or *EncodeError.
type FileResult struct {
	Path    string
	Output  string
	Stats   Stats
	Palette []colorful.Color
	Err     error
}

func (r FileResult) OK() bool { return r.Err == nil }

type Report struct {
	Results []FileResult
}

func (r *Report) Succeeded() []FileResult { return r.filter(true) }
func (r *Report) Failed() []FileResult    { return r.filter(false) }

func (r *Report) filter(ok bool) []FileResult {
	var out []FileResult
	for _, res := range r.Results {
		if res.OK() == ok {
			out = append(out, res)
		}
	}
	return out
}

// Summary aggregates a report.
type Summary struct {
	Files, Succeeded, Failed int
	MaskedPixels, Pixels     int
	// Mean and standard deviation of the per-file masked fraction over
	// succeeded files.
	MeanFraction, StdDevFraction float64
}

func (r *Report) Summary() Summary {
	s := Summary{Files: len(r.Results)}
	var fractions []float64
	for _, res := range r.Results {
		if !res.OK() {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.MaskedPixels += res.Stats.Masked
		s.Pixels += res.Stats.Total
		fractions = append(fractions, res.Stats.Fraction())
	}
	switch len(fractions) {
	case 0:
	case 1:
		s.MeanFraction = fractions[0]
	default:
		s.MeanFraction, s.StdDevFraction = stat.MeanStdDev(fractions, nil)
	}
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("%d files, %d ok, %d failed, %d/%d pixels masked (mean %.1f%% ± %.1f%%)",
		s.Files, s.Succeeded, s.Failed, s.MaskedPixels, s.Pixels,
		s.MeanFraction*100, s.StdDevFraction*100)
}

// outputPath maps a discovered file to where its result is written.
func (c Config) outputPath(path string) (string, error) {
	if c.OutputDir == "" {
		return path, nil
	}
	rel, err := filepath.Rel(c.Root, path)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.OutputDir, rel), nil
}

// inOutputDir reports whether path lies under OutputDir, so results written
// inside Root are not picked up again by the walk.
func (c Config) inOutputDir(path string) bool {
	if c.OutputDir == "" {
		return false
	}
	rel, err := filepath.Rel(c.OutputDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ProcessFile loads the image at path, masks its background and saves the
// result as PNG to dst. Nothing is written when dryRun is set.
func ProcessFile(path, dst string, opt Options, dryRun bool) FileResult {
	res, _ := processFile(path, dst, opt, dryRun)
	return res
}

func processFile(path, dst string, opt Options, dryRun bool) (FileResult, *image.NRGBA) {
	res := FileResult{Path: path, Output: dst}
	img, err := utils.ReadImage(path)
	if err != nil {
		res.Err = err
		return res, nil
	}
	out, stats := Mask(img, opt)
	res.Stats = stats
	if !dryRun {
		if err := utils.SaveImage(out, dst); err != nil {
			res.Err = err
			return res, nil
		}
	}
	return res, out
}

func (c Config) process(path string) FileResult {
	dst, err := c.outputPath(path)
	if err != nil {
		return FileResult{Path: path, Err: &EncodeError{Path: path, Err: err}}
	}
	res, out := processFile(path, dst, c.Options, c.DryRun)
	if out != nil && c.PaletteSize > 0 {
		var used utils.PaletteMethod
		res.Palette, used = utils.ExtractPalette(out, c.PaletteSize, c.PaletteMethod)
		if used != c.PaletteMethod {
			Logger().Debug("bgmask: palette fallback", "path", path, "method", used)
		}
	}

	log := Logger()
	if res.Err != nil {
		log.Error("bgmask: failed", "path", path, "err", res.Err)
	} else {
		log.Info("bgmask: processed", "path", path, "output", dst,
			"masked", res.Stats.Masked, "total", res.Stats.Total, "reference", res.Stats.Reference.Hex())
	}
	return res
}

// Run processes every PNG under cfg.Root. Per-file failures are recorded in
// the report and do not stop the batch. A *DiscoveryError or a cancelled ctx
// ends the batch early; the report then holds the files finished so far.
// Results are in discovery order.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.Options.Validate(); err != nil {
		return nil, err
	}
	workers := max(cfg.Workers, 1)
	report := &Report{}

	type job struct {
		idx  int
		path string
	}
	jobs := make(chan job)
	var (
		mu      sync.Mutex
		results = map[int]FileResult{}
		wg      sync.WaitGroup
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				res := cfg.process(j.path)
				mu.Lock()
				results[j.idx] = res
				mu.Unlock()
			}
		}()
	}

	var runErr error
	n := 0
walk:
	for path, err := range Walk(cfg.Root) {
		if err != nil {
			runErr = err
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if cfg.inOutputDir(path) {
			continue
		}
		select {
		case jobs <- job{idx: n, path: path}:
			n++
		case <-ctx.Done():
			runErr = ctx.Err()
			break walk
		}
	}
	close(jobs)
	wg.Wait()

	report.Results = make([]FileResult, 0, n)
	for i := range n {
		report.Results = append(report.Results, results[i])
	}
	if runErr != nil {
		Logger().Error("bgmask: batch aborted", "root", cfg.Root, "err", runErr)
		return report, runErr
	}
	Logger().Debug("bgmask: batch done", "root", cfg.Root, "summary", report.Summary().String())
	return report, nil
}
