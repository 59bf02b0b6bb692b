package platform

import (
	"context"
	"os/exec"
)

// Runner executes an external tool and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// CmdRunner runs tools with os/exec.
type CmdRunner struct{}

func (CmdRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
