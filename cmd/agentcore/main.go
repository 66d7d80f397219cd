// Command agentcore drives a nested-loop phase-alternation agent job.
//
// Usage:
//
//	agentcore run --role-config role.yaml
//	agentcore resume --role-config role.yaml --job-id job_42
//	agentcore recover --role-config role.yaml --job-id job_42 --phase 3
//	agentcore serve --role-config role.yaml --job-id job_42
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/agentcore/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Run a new job to completion or suspension."`
	Resume  ResumeCmd  `cmd:"" help:"Resume a job from its last checkpoint."`
	Recover RecoverCmd `cmd:"" help:"Roll a job back to an earlier phase snapshot."`
	Serve   ServeCmd   `cmd:"" help:"Watch a workspace and expose a metrics endpoint."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	WorkspacePath string `name:"workspace-path" help:"Base directory jobs are rooted under." type:"path"`
	RoleConfig    string `name:"role-config" help:"Path to the role's YAML configuration file." type:"path"`
	LogLevel      string `name:"log-level" help:"Log level (debug, info, warn, error)." default:"info"`
	LogFormat     string `name:"log-format" help:"Log format (simple, verbose)." default:"simple"`
}

// VersionCmd prints the build version embedded by the Go toolchain.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("agentcore %s\n", version)
	return nil
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentcore"),
		kong.Description("Nested-loop phase-alternation execution core"),
		kong.UsageOnError(),
	)

	logger.Init(logger.ParseLevel(cli.LogLevel), os.Stderr, cli.LogFormat)
	slog.Debug("agentcore starting", "command", ctx.Command())

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
