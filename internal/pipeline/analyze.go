package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/AtomWave/AW-converter-2-0/internal/display"
	"github.com/AtomWave/AW-converter-2-0/internal/imageopt"
	"github.com/AtomWave/AW-converter-2-0/internal/naming"
	"github.com/AtomWave/AW-converter-2-0/internal/term"
)

// imageRow holds the inspected per-file data for the analysis table.
type imageRow struct {
	Source string
	Output string
	Format string
	Width  int
	Height int
	Size   int64
	BPP    float64 // Bits per pixel.
}

// Analyze discovers images, reads their headers, and prints a table of
// format, dimensions, size, bits per pixel and planned output. Files whose
// bits per pixel are statistical outliers are flagged; they are the ones
// recompression helps most.
func Analyze(ctx context.Context, env *Env, w io.Writer) error {
	cfg := env.Cfg
	log := env.Log.Stage("analyze")

	base, glob := cfg.SplitGlob(cfg.ImageGlob)
	sources, err := Discover(ctx, base, glob)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		log.Warn("No images matched %s", cfg.ImageGlob)
		return nil
	}
	log.Info("Analyzing %d images", len(sources))

	var rows []imageRow
	var bppVals []float64
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		row, err := inspectImage(src)
		if err != nil {
			log.Warn("Skip %s: %v", src.Rel, err)
			continue
		}
		rows = append(rows, row)
		if row.BPP > 0 {
			bppVals = append(bppVals, row.BPP)
		}
	}
	if len(rows) == 0 {
		log.Warn("No images could be read")
		return nil
	}

	stats := computeStats(bppVals)
	printAnalysisTable(w, rows, stats)

	var outliers, extremes int
	for _, r := range rows {
		switch stats.classify(r.BPP) {
		case "extreme":
			extremes++
		case "outlier":
			outliers++
		}
	}
	log.Info("Analyzed %d images", len(rows))
	if stats.valid {
		log.Info("  Bits-per-pixel IQR: %.2f - %.2f (outlier > %.2f)", stats.q1, stats.q3, stats.outlierHi)
	}
	if outliers > 0 {
		log.Warn("  %d outlier(s) flagged [*]", outliers)
	}
	if extremes > 0 {
		log.Warn("  %d extreme outlier(s) flagged [!]", extremes)
	}
	if outliers == 0 && extremes == 0 {
		log.Success("  No outliers detected")
	}
	return nil
}

func inspectImage(src Source) (imageRow, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return imageRow{}, err
	}
	format, err := imageopt.Sniff(data)
	if err != nil {
		return imageRow{}, err
	}
	ic, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return imageRow{}, fmt.Errorf("decode header: %w", err)
	}
	row := imageRow{
		Source: src.Rel,
		Output: naming.PlanSource(src.Rel).Rel(),
		Format: string(format),
		Width:  ic.Width,
		Height: ic.Height,
		Size:   int64(len(data)),
	}
	if px := ic.Width * ic.Height; px > 0 {
		row.BPP = float64(row.Size*8) / float64(px)
	}
	return row, nil
}

// iqrBounds holds the IQR-based thresholds for outlier classification.
type iqrBounds struct {
	q1, q3    float64
	outlierHi float64 // Q3 + 1.5*IQR
	extremeHi float64 // Q3 + 3.0*IQR
	valid     bool
}

func computeStats(vals []float64) iqrBounds {
	if len(vals) < 4 {
		return iqrBounds{}
	}

	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)

	q1 := percentile(sorted, 25)
	q3 := percentile(sorted, 75)
	iqr := q3 - q1

	return iqrBounds{
		q1:        q1,
		q3:        q3,
		outlierHi: q3 + 1.5*iqr,
		extremeHi: q3 + 3.0*iqr,
		valid:     iqr > 0,
	}
}

// classify returns "" (normal), "outlier", or "extreme" for a value. Only the
// high side matters: a small file per pixel is already well compressed.
func (b *iqrBounds) classify(v float64) string {
	if !b.valid || v <= 0 {
		return ""
	}
	if v > b.extremeHi {
		return "extreme"
	}
	if v > b.outlierHi {
		return "outlier"
	}
	return ""
}

func printAnalysisTable(w io.Writer, rows []imageRow, stats iqrBounds) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Source", "Format", "Size", "Dimensions", "Bits/px", "Output", ""})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, r := range rows {
		table.Append([]string{
			r.Source,
			r.Format,
			display.FormatBytes(r.Size),
			fmt.Sprintf("%dx%d", r.Width, r.Height),
			strconv.FormatFloat(r.BPP, 'f', 2, 64),
			r.Output,
			formatFlag(stats.classify(r.BPP)),
		})
	}
	table.Render()
}

func formatFlag(flag string) string {
	switch flag {
	case "extreme":
		return term.Red + "[!]" + term.NC
	case "outlier":
		return term.Yellow + "[*]" + term.NC
	default:
		return ""
	}
}

// percentile computes the p-th percentile using linear interpolation.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi || hi >= len(sorted) {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
