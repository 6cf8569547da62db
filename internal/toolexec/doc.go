// Package toolexec runs external codec binaries (mozjpeg cjpeg, optipng)
// and turns their failures into classified errors.
//
// Types:
//   - Command: binary name plus arguments.
//   - Runner: the seam stages depend on; [Exec] is the os/exec implementation,
//     tests substitute fakes.
//   - ExecResult: captured stderr and the process error.
//   - ToolError: a failed run with its [Failure] class and the last stderr line.
//
// Stderr is always captured for classification; with Verbose it is also
// tee'd to os.Stderr in real time.
package toolexec
