package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/agentcore/pkg/jobstate"
)

// installSignalHandler returns a context cancelled on SIGINT/SIGTERM. The
// engine's own ctx.Done() branch persists a checkpoint and returns
// should_stop=true before Run unwinds, so cancellation here is the entire
// graceful-shutdown path.
func installSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("signal received, persisting checkpoint and stopping")
		cancel()
	}()
	return ctx, cancel
}

// resolveGoal prefers an explicit --goal-file over a --goal string, returning
// an empty string (leaving instructions.md at its seeded default) if neither
// is set.
func resolveGoal(goal, goalFile string) (string, error) {
	if goalFile != "" {
		data, err := os.ReadFile(goalFile)
		if err != nil {
			return "", fmt.Errorf("read goal file: %w", err)
		}
		return string(data), nil
	}
	return goal, nil
}

// reportOutcome prints a job's final disposition and maps it to a process
// exit status: non-recoverable errors are the only case kong should report
// as a command failure.
func reportOutcome(jobID string, state *jobstate.JobState) error {
	switch {
	case state.GoalAchieved:
		fmt.Printf("job %s: goal achieved after %d phase(s)\n", jobID, state.PhaseNumber)
		return nil
	case state.Error != nil:
		fmt.Printf("job %s: stopped (%s): %s\n", jobID, state.Error.Type, state.Error.Message)
		if state.Error.Recoverable {
			fmt.Printf("resume with: agentcore resume --job-id %s\n", jobID)
			return nil
		}
		return fmt.Errorf("job %s failed: %s", jobID, state.Error.Type)
	default:
		fmt.Printf("job %s: stopped without completing (thread %s)\n", jobID, state.ThreadID)
		return nil
	}
}
