// Agentd hosts the long-lived agent process.
//
// The binary constructs the host context (service registry, redacted
// trace hub, path resolver, shutdown coordination) and idles until a
// signal requests shutdown. Job scheduling and task execution are
// separate processes layered on top of this host.
//
// Usage:
//
//	# Run with defaults
//	agentd run
//
//	# Enable HTTP instrumentation tracing
//	VSTS_AGENT_HTTPTRACE=true agentd run
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentd/internal/hostcontext"
	"github.com/fyrsmithlabs/agentd/internal/shutdown"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "agentd",
		Short:        "agentd hosts the agent runtime",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newVersionCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var hostType string
	var httpTrace bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the agent host until shutdown is requested",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(hostType, httpTrace)
		},
	}
	cmd.Flags().StringVar(&hostType, "host-type", "agent", "host type (agent, worker)")
	cmd.Flags().BoolVar(&httpTrace, "http-trace", false,
		"bridge HTTP instrumentation into the trace log")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentd by Fyrsmith Labs\n")
			fmt.Printf("Version:    %s\n", version)
			fmt.Printf("Commit:     %s\n", gitCommit)
			fmt.Printf("Build Date: %s\n", buildDate)
		},
	}
}

// run constructs the host and blocks until shutdown is signalled.
func run(hostType string, httpTrace bool) error {
	opts := []hostcontext.Option{}
	if httpTrace {
		opts = append(opts, hostcontext.WithHTTPTrace(true))
	}

	host, err := hostcontext.New(hostType, opts...)
	if err != nil {
		return fmt.Errorf("creating host context: %w", err)
	}
	defer host.Close()

	if err := host.Settings().Watch(); err != nil {
		return fmt.Errorf("watching settings: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		reason := shutdown.ReasonOperatorShutdown
		if sig == syscall.SIGINT {
			reason = shutdown.ReasonUserCancelled
		}
		host.Shutdown(reason)
	}()

	host.WritePerfCounter("host:start")
	<-host.ShutdownToken().Done()
	host.WritePerfCounter("host:stop")

	// The runtime is coming down with us; let unload listeners run
	// before resources are released.
	host.ShutdownToken().NotifyUnload()
	return nil
}
