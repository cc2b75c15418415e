package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kant2002/MstatAnalyser/internal/app"
)

const (
	exitOK = iota
	exitRunError
	exitUsage
	exitSizeIncrease
)

type Runner interface {
	Execute(ctx context.Context, req app.Request) (string, error)
}

type CLI struct {
	Runner Runner
	Out    io.Writer
	Err    io.Writer
}

func New(runner Runner, out io.Writer, errOut io.Writer) *CLI {
	return &CLI{
		Runner: runner,
		Out:    out,
		Err:    errOut,
	}
}

func (c *CLI) Run(ctx context.Context, args []string) int {
	req, err := ParseArgs(args)
	if err != nil {
		if errors.Is(err, ErrHelpRequested) {
			if _, writeErr := fmt.Fprint(c.Out, Usage()); writeErr != nil {
				return exitRunError
			}
			return exitOK
		}
		if _, writeErr := fmt.Fprintf(c.Err, "error: %v\n\n", err); writeErr != nil {
			return exitRunError
		}
		if _, writeErr := fmt.Fprint(c.Err, Usage()); writeErr != nil {
			return exitRunError
		}
		return exitUsage
	}

	output, runErr := c.Runner.Execute(ctx, req)
	if output != "" {
		if !strings.HasSuffix(output, "\n") {
			output += "\n"
		}
		if _, writeErr := fmt.Fprint(c.Out, output); writeErr != nil {
			return exitRunError
		}
	}

	if runErr != nil {
		_, _ = fmt.Fprintln(c.Err, runErr.Error())
		if errors.Is(runErr, app.ErrFailOnIncrease) {
			return exitSizeIncrease
		}
		return exitRunError
	}

	return exitOK
}
