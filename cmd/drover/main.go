package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/droverdev/drover/internal/backlog"
	"github.com/droverdev/drover/internal/cli"
	"github.com/droverdev/drover/internal/session"
)

// Exit codes: 0 success, 1 run-level failure (failed/blocked subtasks),
// 2 fatal initialization or usage error, 130 cancelled.
func main() {
	err := cli.Execute()
	if err == nil {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errors.Is(err, session.ErrPRDRead),
		errors.Is(err, session.ErrPlanRoot),
		errors.Is(err, session.ErrSessionLoad),
		errors.Is(err, backlog.ErrInvalidScope),
		errors.Is(err, backlog.ErrScopeNotFound):
		return 2
	default:
		return 1
	}
}
