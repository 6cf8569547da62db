// Package pipeline implements the build stages: discovery of source files,
// per-file processing on a bounded worker pool, and per-stage statistics.
//
// Stages:
//   - Clean: empty the distribution directory, keeping the directory itself.
//   - OptimizeImages: recompress image/**/*.{jpg,jpeg,png} and write each to
//     the path planned by package naming.
//   - Otf2Ttf: convert font/**/*.otf to TrueType next to the sources.
//   - Ttf2Woff, Ttf2Woff2: package font/**/*.ttf into the font dist directory.
//
// Every stage has the [StageFunc] shape so the orchestrator can run them by
// name. A per-file failure fails the stage: files in flight finish, no new
// file starts.
package pipeline
