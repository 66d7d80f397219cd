package main

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/kadirpekel/agentcore/pkg/jobstate"
)

// RunCmd starts a new job from scratch.
type RunCmd struct {
	JobID    string `name:"job-id" help:"Job identifier (generated if omitted)."`
	Goal     string `help:"Job instructions, written to instructions.md."`
	GoalFile string `name:"goal-file" help:"Path to a file containing job instructions." type:"path"`
}

func (c *RunCmd) Run(cli *CLI) error {
	jobID := c.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}

	r, err := buildRig(cli, jobID)
	if err != nil {
		return err
	}
	defer r.Close()

	instructions, err := resolveGoal(c.Goal, c.GoalFile)
	if err != nil {
		return err
	}
	if instructions != "" {
		if err := r.Workspace.WriteFile("instructions.md", instructions); err != nil {
			return fmt.Errorf("write instructions: %w", err)
		}
	}

	ctx, cancel := installSignalHandler()
	defer cancel()

	state := jobstate.New(jobID, r.Workspace.Root())
	result, err := r.Engine.Run(ctx, state)
	if err != nil {
		return fmt.Errorf("run job %s: %w", jobID, err)
	}
	return reportOutcome(jobID, result)
}

// ResumeCmd continues a previously started job from its latest checkpoint.
type ResumeCmd struct {
	JobID    string `name:"job-id" required:"" help:"Job identifier to resume."`
	ThreadID string `name:"thread-id" help:"Thread ID to resume (defaults to the store's only/first entry)."`
}

func (c *ResumeCmd) Run(cli *CLI) error {
	r, err := buildRig(cli, c.JobID)
	if err != nil {
		return err
	}
	defer r.Close()

	threadID := c.ThreadID
	if threadID == "" {
		id, found := r.Checkpoints.FirstThreadID()
		if !found {
			return fmt.Errorf("no checkpoint found for job %s", c.JobID)
		}
		threadID = id
	}

	state, found, err := r.Checkpoints.Load(threadID)
	if err != nil {
		return fmt.Errorf("load checkpoint %s: %w", threadID, err)
	}
	if !found {
		return fmt.Errorf("no checkpoint found for thread %s", threadID)
	}

	ctx, cancel := installSignalHandler()
	defer cancel()

	result, err := r.Engine.Run(ctx, state)
	if err != nil {
		return fmt.Errorf("resume job %s: %w", c.JobID, err)
	}
	return reportOutcome(c.JobID, result)
}

// RecoverCmd rolls a job's workspace and checkpoint back to an earlier
// phase snapshot, pruning any snapshots taken after it.
type RecoverCmd struct {
	JobID string `name:"job-id" required:"" help:"Job identifier."`
	Phase int    `required:"" help:"Phase number to roll back to."`
}

func (c *RecoverCmd) Run(cli *CLI) error {
	r, err := buildRig(cli, c.JobID)
	if err != nil {
		return err
	}
	defer r.Close()

	if !r.Engine.Snapshots.RecoverToPhase(c.Phase) {
		return fmt.Errorf("no snapshot found for job %s phase %d", c.JobID, c.Phase)
	}
	pruned := r.Engine.Snapshots.DeleteSnapshotsAfter(c.Phase)
	fmt.Printf("job %s: recovered to phase %d (pruned %d newer snapshot(s))\n", c.JobID, c.Phase, pruned)
	return nil
}
