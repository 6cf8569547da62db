// Package cli builds the awconvert command tree. Every stage and composite
// target of the orchestrator graph is a subcommand; running the root command
// without one builds everything.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/AtomWave/AW-converter-2-0/internal/check"
	"github.com/AtomWave/AW-converter-2-0/internal/config"
	"github.com/AtomWave/AW-converter-2-0/internal/display"
	"github.com/AtomWave/AW-converter-2-0/internal/imageopt"
	"github.com/AtomWave/AW-converter-2-0/internal/logging"
	"github.com/AtomWave/AW-converter-2-0/internal/orchestrator"
	"github.com/AtomWave/AW-converter-2-0/internal/pipeline"
	"github.com/AtomWave/AW-converter-2-0/internal/toolexec"
)

// BuildInfo is stamped into the binary at link time.
type BuildInfo struct {
	Version string
	Commit  string
}

// Injectable for tests.
var (
	graph        = orchestrator.DefaultGraph()
	stages       = pipeline.Stages
	newLogger    = logging.NewLogger
	newOptimizer = func(cfg *config.Config) (imageopt.Optimizer, error) {
		return check.NewOptimizer(cfg, toolexec.Exec{Verbose: cfg.Verbose})
	}
)

var targetHelp = map[string]string{
	pipeline.StageClean:          "Empty the distribution directory",
	pipeline.StageOptimizeImages: "Recompress images into the distribution directory",
	pipeline.StageOtf2Ttf:        "Convert OpenType (CFF) fonts to TrueType",
	pipeline.StageTtf2Woff:       "Package TrueType fonts as WOFF",
	pipeline.StageTtf2Woff2:      "Package TrueType fonts as WOFF2",
	orchestrator.TargetFonts:     "Run otf2ttf, then ttf2woff and ttf2woff2 in parallel",
	orchestrator.TargetBuild:     "Run clean, then optimizeImages and fonts in parallel (default)",
}

// session holds the state shared by the commands of one invocation.
type session struct {
	info  BuildInfo
	cfg   config.Config
	flags *config.Flags
	log   *logging.Logger
	out   io.Writer
}

// NewRootCmd returns the awconvert command tree.
func NewRootCmd(info BuildInfo) *cobra.Command {
	cmd, _ := newRootCmd(info)
	return cmd
}

func newRootCmd(info BuildInfo) (*cobra.Command, *session) {
	s := &session{info: info, cfg: config.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "awconvert [command]",
		Short: "Static asset pipeline for images and web fonts",
		Long: `awconvert optimizes raster images and converts fonts for the web.

Images under image/ are recompressed into dist/<head>/<head>-<group><tail><ext>.
Fonts under font/ are converted OTF -> TTF and packaged as WOFF and WOFF2
into dist/font/. Without a command the full build runs.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: s.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runTarget(cmd.Context(), orchestrator.DefaultTarget)
		},
	}
	s.flags = config.BindFlags(cmd.PersistentFlags(), &s.cfg)

	for _, name := range graph.Targets() {
		cmd.AddCommand(s.targetCmd(name))
	}
	cmd.AddCommand(s.checkCmd(), s.analyzeCmd(), newVersionCmd(info))
	return cmd, s
}

// setup applies negated flags, validates the configuration, and opens the
// logger. Runs before every command except version.
func (s *session) setup(cmd *cobra.Command, _ []string) error {
	s.flags.Apply()
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	log, err := newLogger(&s.cfg)
	if err != nil {
		return err
	}
	s.log = log
	s.out = cmd.OutOrStdout()
	display.PrintBanner(s.out, s.info.Version)
	return nil
}

func (s *session) close() {
	if s.log != nil {
		s.log.Close()
	}
}

func (s *session) targetCmd(name string) *cobra.Command {
	c := &cobra.Command{
		Use:   name,
		Short: targetHelp[name],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.runTarget(cmd.Context(), name)
		},
	}
	if name == pipeline.StageOptimizeImages {
		c.Aliases = []string{"optimize-images"}
	}
	return c
}

func (s *session) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report codec support, external tools and the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			check.RunCheck(cmd.Context(), &s.cfg, s.log)
			return nil
		},
	}
}

func (s *session) analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Table of images with size, bits per pixel and planned output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := &pipeline.Env{Cfg: &s.cfg, Log: s.log}
			return pipeline.Analyze(cmd.Context(), env, s.out)
		},
	}
}

func newVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print the version",
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "awconvert %s (commit %s)\n", info.Version, info.Commit)
		},
	}
}

// Execute runs the command line and returns the process exit status.
func Execute(ctx context.Context, info BuildInfo, args []string) int {
	cmd, s := newRootCmd(info)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	s.close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "awconvert: %v\n", err)
		return 1
	}
	return 0
}
