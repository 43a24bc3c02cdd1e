// Package oracle cross-checks the flow graph builder against an external
// reference builder. The reference is run as a subprocess that receives a
// file path and a function name and prints the function's graph as DOT.
package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/l3aro/go-pattern-miner/internal/log"
	"github.com/l3aro/go-pattern-miner/pkg/artifact"
	"github.com/l3aro/go-pattern-miner/pkg/flowgraph"
	"github.com/l3aro/go-pattern-miner/pkg/isomorph"
	"github.com/l3aro/go-pattern-miner/pkg/pattern"
	"github.com/l3aro/go-pattern-miner/pkg/syntax"
)

// DefaultTimeout bounds a single reference run.
const DefaultTimeout = 30 * time.Second

// SubprocessError reports a reference builder that did not exit cleanly.
type SubprocessError struct {
	Command  []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *SubprocessError) Error() string {
	msg := fmt.Sprintf("oracle %q exited with status %d", strings.Join(e.Command, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *SubprocessError) Unwrap() error { return e.Err }

// Checker runs the reference builder and compares its output with ours.
type Checker struct {
	command []string
	timeout time.Duration
	logger  log.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithTimeout bounds each reference run. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l log.Logger) Option {
	return func(c *Checker) { c.logger = l }
}

// NewChecker creates a checker for the given command line. The file and
// function are appended as the last two arguments.
func NewChecker(command []string, opts ...Option) (*Checker, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("oracle command is not configured")
	}
	c := &Checker{
		command: append([]string(nil), command...),
		timeout: DefaultTimeout,
		logger:  log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Reference runs the reference builder for one function and decodes its
// graph. The run is never retried.
func (c *Checker) Reference(ctx context.Context, file, function string) (*pattern.Graph, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	argv := append(append([]string(nil), c.command...), file, function)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	c.logger.Debug("oracle finished", "function", function, "duration", time.Since(start), "error", err)
	if err != nil {
		serr := &SubprocessError{Command: argv, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			serr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			serr.Err = ctxErr
		}
		return nil, serr
	}

	g, err := artifact.UnmarshalGraph(stdout.Bytes())
	if err != nil {
		return nil, fmt.Errorf("decoding oracle output for %s: %w", function, err)
	}
	return g, nil
}

// Result is the outcome of one cross-check.
type Result struct {
	Function   string
	Equivalent bool
	// Mapping goes from our vertices to the reference's when Equivalent.
	Mapping     isomorph.Mapping
	Ours        *pattern.Graph
	Reference   *pattern.Graph
	Diagnostics []flowgraph.Diagnostic
}

// Summary describes the result in one line.
func (r *Result) Summary() string {
	verdict := "equivalent"
	if !r.Equivalent {
		verdict = "DIFFERENT"
	}
	return fmt.Sprintf("%s: %s (ours %d vertices/%d edges, reference %d vertices/%d edges)",
		r.Function, verdict, r.Ours.Len(), r.Ours.EdgeCount(), r.Reference.Len(), r.Reference.EdgeCount())
}

// Check builds function from file in process, runs the reference builder on
// the same function and compares both graphs with exact isomorphism.
func (c *Checker) Check(ctx context.Context, file, function string) (*Result, error) {
	tree, err := syntax.ParsePythonFile(ctx, file)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	fn, err := tree.Function(function)
	if err != nil {
		return nil, err
	}
	fg, err := flowgraph.Build(fn.Node, flowgraph.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	ours, err := pattern.FromFlowGraph(fg)
	if err != nil {
		return nil, err
	}

	ref, err := c.Reference(ctx, file, function)
	if err != nil {
		return nil, err
	}

	res := &Result{Function: function, Ours: ours, Reference: ref, Diagnostics: fg.Diagnostics}
	res.Mapping, res.Equivalent = isomorph.ExactMatcher().Isomorphic(ours, ref)
	return res, nil
}
