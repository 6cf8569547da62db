package imageopt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/AtomWave/AW-converter-2-0/internal/toolexec"
)

// Tool binaries driven by the external backend.
const (
	CJPEG   = "cjpeg"
	OptiPNG = "optipng"
)

// External recompresses through mozjpeg cjpeg and optipng. Each call stages
// the input in a private temp directory so concurrent calls never share
// files.
type External struct {
	Opts   Options
	Runner toolexec.Runner
}

// NewExternal returns an External optimizer using runner.
func NewExternal(opts Options, runner toolexec.Runner) *External {
	return &External{Opts: opts, Runner: runner}
}

func (e *External) Name() string { return "external" }

// Optimize writes data to a temp file, runs the matching tool and reads the
// result back. PNG results that are not smaller are discarded.
func (e *External) Optimize(ctx context.Context, data []byte) (Result, error) {
	f, err := Sniff(data)
	if err != nil {
		return Result{}, err
	}

	dir, err := os.MkdirTemp("", "awconvert-img-*")
	if err != nil {
		return Result{}, err
	}
	defer os.RemoveAll(dir)

	ext := ".png"
	if f == FormatJPEG {
		ext = ".jpg"
	}
	in := filepath.Join(dir, "in"+ext)
	out := filepath.Join(dir, "out"+ext)
	if err := os.WriteFile(in, data, 0o644); err != nil {
		return Result{}, err
	}

	cmd := e.command(f, in, out)
	if err := e.Runner.Run(ctx, cmd).AsError(cmd.Name); err != nil {
		return Result{}, err
	}

	optimized, err := os.ReadFile(out)
	if errors.Is(err, os.ErrNotExist) && f == FormatPNG {
		// optipng leaves no output when the input is already optimal.
		return Result{Data: data, Format: f, Original: true}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read %s output: %w", cmd.Name, err)
	}

	if f == FormatJPEG {
		return Result{Data: optimized, Format: f}, nil
	}
	return keepSmaller(data, optimized, f), nil
}

// command builds the tool invocation for one file.
func (e *External) command(f Format, in, out string) toolexec.Command {
	if f == FormatJPEG {
		args := []string{"-quality", strconv.Itoa(e.Opts.JPEGQuality)}
		if e.Opts.Progressive {
			args = append(args, "-progressive")
		} else {
			args = append(args, "-baseline")
		}
		args = append(args, "-optimize", "-outfile", out, in)
		return toolexec.Command{Name: CJPEG, Args: args}
	}
	return toolexec.Command{
		Name: OptiPNG,
		Args: []string{"-o" + strconv.Itoa(e.Opts.PNGLevel), "-quiet", "-out", out, in},
	}
}
