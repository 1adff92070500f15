// Package execrun is the command execution primitive: it runs a child
// process, streams its stdout/stderr with non-blocking I/O, honors an
// optional timeout, and produces a structured CommandResult.
//
// Grounded on the teacher's subprocess idiom (applecontainer.ContainerSvc
// methods build an *exec.Cmd, log the command line via slog, and capture
// output) generalized to the spec's streaming + timeout contract. The
// Python original multiplexes stdout/stderr with select(); goroutines
// joined by golang.org/x/sync/errgroup are the idiomatic Go replacement.
package execrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haleterminal/gator/errs"
)

// Response is the captured shape of a finished (or killed) command.
type Response struct {
	Command    string
	Stderr     []byte
	Stdout     []byte
	StatusCode int
}

// CommandResult is the outcome of Run. Success is true iff StatusCode == 0;
// no caller in this tree treats any other exit status as success.
type CommandResult struct {
	Success  bool
	Response Response
}

// Command is either a shell string (run through /bin/sh -c) or an argv
// slice (run without a shell), matching the dual calling convention of the
// Python original's monitor_command.
type Command struct {
	Shell string
	Argv  []string
}

// Shell builds a Command that runs through the shell.
func Shell(s string) Command { return Command{Shell: s} }

// Argv builds a Command that runs without a shell.
func Argv(args ...string) Command { return Command{Argv: args} }

func (c Command) commandString() string {
	if c.Shell != "" {
		return c.Shell
	}
	return strings.Join(c.Argv, " ")
}

const readChunk = 4096

// Run executes cmd, streaming stdout/stderr at debug level in chunks of up
// to readChunk bytes (not split on line boundaries),
// and returns once the child has exited or the timeout expired. A
// non-positive timeout means "no timeout".
func Run(ctx context.Context, cmd Command, timeout time.Duration) (CommandResult, error) {
	cmdStr := cmd.commandString()
	if cmdStr == "" {
		return CommandResult{}, errors.New("execrun: empty command")
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var execCmd *exec.Cmd
	if cmd.Shell != "" {
		execCmd = exec.CommandContext(runCtx, "/bin/sh", "-c", cmd.Shell)
	} else {
		execCmd = exec.CommandContext(runCtx, cmd.Argv[0], cmd.Argv[1:]...)
	}
	execCmd.Env = sanitizedEnv()

	slog.Debug("execrun.Run", "command", cmdStr)

	stdoutPipe, err := execCmd.StdoutPipe()
	if err != nil {
		return CommandResult{}, fmt.Errorf("execrun: stdout pipe: %w", err)
	}
	stderrPipe, err := execCmd.StderrPipe()
	if err != nil {
		return CommandResult{}, fmt.Errorf("execrun: stderr pipe: %w", err)
	}

	if err := execCmd.Start(); err != nil {
		return CommandResult{}, fmt.Errorf("execrun: start: %w", err)
	}

	var stdout, stderr bytes.Buffer
	group, _ := errgroup.WithContext(context.Background())
	group.Go(func() error {
		return pump(stdoutPipe, &stdout, false)
	})
	group.Go(func() error {
		return pump(stderrPipe, &stderr, true)
	})
	_ = group.Wait()

	waitErr := execCmd.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		return CommandResult{
			Success: false,
			Response: Response{
				Command:    cmdStr,
				Stdout:     stdout.Bytes(),
				Stderr:     stderr.Bytes(),
				StatusCode: -1,
			},
		}, &errs.CommandTimeout{Command: cmdStr, Timeout: timeout.String()}
	}

	status := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			status = exitErr.ExitCode()
		} else {
			return CommandResult{}, fmt.Errorf("execrun: wait: %w", waitErr)
		}
	}

	slog.Debug("execrun.Run status", "command", cmdStr, "status", status)

	return CommandResult{
		Success: status == 0,
		Response: Response{
			Command:    cmdStr,
			Stdout:     stdout.Bytes(),
			Stderr:     stderr.Bytes(),
			StatusCode: status,
		},
	}, nil
}

// pump reads cmd output in readChunk-sized pieces, logging each chunk at
// debug level and accumulating it into buf. It replaces the Python
// original's select()-driven read loop with a dedicated goroutine per
// stream; EOF ends the loop silently, matching monitor_command's behavior.
func pump(r io.Reader, buf *bytes.Buffer, isStderr bool) error {
	chunk := make([]byte, readChunk)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if isStderr {
				slog.Debug("execrun stderr", "chunk", string(chunk[:n]))
			} else {
				slog.Debug("execrun stdout", "chunk", string(chunk[:n]))
			}
		}
		if err != nil {
			return nil
		}
	}
}

// sanitizedEnv strips a virtualenv's bin/ prefix from PATH, the Go
// analogue of the Python original's sys.real_prefix check, so a chrooted
// or host-native tool resolves instead of a venv shim.
func sanitizedEnv() []string {
	env := os.Environ()
	venv := os.Getenv("VIRTUAL_ENV")
	if venv == "" {
		return env
	}
	prefix := venv + "/bin:"
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			out = append(out, "PATH="+strings.Replace(strings.TrimPrefix(kv, "PATH="), prefix, "", 1))
			continue
		}
		out = append(out, kv)
	}
	return out
}
