// Command veritas runs the research verification server and submits
// documents to it.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ccastromar/veritas/internal/agent"
	"github.com/ccastromar/veritas/internal/app"
	"github.com/ccastromar/veritas/internal/config"
	"github.com/ccastromar/veritas/internal/logx"
)

// runner is the minimal interface our app must satisfy for running.
type runner interface{ Run(context.Context) error }

// appCtor is a constructor indirection to enable testing without launching the real app.
var appCtor = func(env *config.EnvVars) (runner, error) { return app.NewWithEnv(env) }

// fatalf indirection allows testing fatal paths without exiting the test process.
var fatalf = log.Fatalf

func run(ctx context.Context, env *config.EnvVars) {
	a, err := appCtor(env)
	if err != nil {
		fatalf("error initializing app: %v", err)
		return
	}
	if err := a.Run(ctx); err != nil {
		fatalf("error running app: %v", err)
		return
	}
}

var port string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "veritas",
		Short: "Verify the numbers in business documents",
		Long: `veritas extracts high-stakes numerical claims from a document, researches
each one and reports how far the claims are from what sources show.

Running veritas with no subcommand starts the server.`,
		Version:       agent.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.Flags().StringVar(&port, "port", "", "HTTP port to listen on (overrides PORT)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the verification server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serve.Flags().StringVar(&port, "port", "", "HTTP port to listen on (overrides PORT)")

	root.AddCommand(serve, newSubmitCmd())
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}
	if err := logx.Init(env.LogLevel, env.AppEnv); err != nil {
		return err
	}
	defer logx.Sync()

	app.SetHTTPPort(port)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	run(ctx, env)
	return nil
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Printf("veritas: %v", err)
		os.Exit(1)
	}
}
