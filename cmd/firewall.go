package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner runs an external program and fails on a non-zero exit.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) error
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	c := exec.CommandContext(ctx, name, args...)
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// rstDropRule keeps the kernel from resetting a connection it did not open.
var rstDropRule = []string{"OUTPUT", "-p", "tcp", "-m", "tcp", "--tcp-flags", "RST", "RST", "-j", "DROP"}

// installRSTDrop appends the rule and returns a function that deletes it.
func installRSTDrop(ctx context.Context, runner CommandRunner) (func(context.Context) error, error) {
	if err := runner.Run(ctx, "iptables", append([]string{"-A"}, rstDropRule...)...); err != nil {
		return nil, fmt.Errorf("failed to add firewall rule: %w", err)
	}
	return func(ctx context.Context) error {
		if err := runner.Run(ctx, "iptables", append([]string{"-D"}, rstDropRule...)...); err != nil {
			return fmt.Errorf("failed to remove firewall rule: %w", err)
		}
		return nil
	}, nil
}
