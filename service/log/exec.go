package log

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const maxLineLength = 256 * 1024

type execOption struct {
	outl, errl zapcore.Level
	skip       func(line string) bool
}

// ExecOption is an option that can be passed to Exec()
type ExecOption func(eo *execOption)

// StdoutLevel sets the level at which stdout is logged (default: Info)
func StdoutLevel(l zapcore.Level) ExecOption {
	return func(eo *execOption) {
		eo.outl = l
	}
}

// StderrLevel sets the level at which stderr is logged (default: Warn)
func StderrLevel(l zapcore.Level) ExecOption {
	return func(eo *execOption) {
		eo.errl = l
	}
}

// Skip drops the output lines for which f returns true (e.g. progress bars of a sync tool)
func Skip(f func(line string) bool) ExecOption {
	return func(eo *execOption) {
		eo.skip = f
	}
}

// Exec runs the command, logging every line of its outputs that are not redirected
// (cmd.Stdout and cmd.Stderr nil) with log.Logger(ctx).
// The command is killed on ctx cancellation if it was created with exec.CommandContext.
func Exec(ctx context.Context, cmd *exec.Cmd, options ...ExecOption) error {
	opts := execOption{
		outl: zapcore.InfoLevel,
		errl: zapcore.WarnLevel,
	}
	for _, eo := range options {
		eo(&opts)
	}

	type output struct {
		r     io.Reader
		level zapcore.Level
	}
	var outputs []output
	if cmd.Stdout == nil {
		r, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("Exec.StdoutPipe: %w", err)
		}
		outputs = append(outputs, output{r, opts.outl})
	}
	if cmd.Stderr == nil {
		r, err := cmd.StderrPipe()
		if err != nil {
			return fmt.Errorf("Exec.StderrPipe: %w", err)
		}
		outputs = append(outputs, output{r, opts.errl})
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("Exec.Start: %w", err)
	}

	logger := Logger(ctx)
	var wg sync.WaitGroup
	for _, o := range outputs {
		wg.Add(1)
		go func(o output) {
			defer wg.Done()
			logLines(logger, o.r, o.level, opts.skip)
		}(o)
	}
	// Pipes must be drained before Wait
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("Exec[%s]: %w", cmd.Path, err)
	}
	return nil
}

func logLines(logger *zap.Logger, r io.Reader, level zapcore.Level, skip func(string) bool) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineLength)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || (skip != nil && skip(line)) {
			continue
		}
		if ce := logger.Check(level, line); ce != nil {
			ce.Write()
		}
	}
	if err := sc.Err(); err != nil {
		logger.Sugar().Warnf("output not logged: %v", err)
		io.Copy(io.Discard, r)
	}
}

// Shell runs the command line with "sh -c", logging its outputs (see Exec)
func Shell(ctx context.Context, command string, options ...ExecOption) error {
	return Exec(ctx, exec.CommandContext(ctx, "sh", "-c", command), options...)
}
