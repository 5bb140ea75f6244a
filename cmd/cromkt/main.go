// The cromkt binary is the operator command line for the pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/application/platform"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/config"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/infrastructure/monitoring/logging"
	"github.com/Blitzy-Rev/cro-marketplace-f6m4oo-sub007/internal/interfaces/cli"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	// The config flag is parsed before cobra so the platform exists when
	// the command tree is built.
	fs := flag.NewFlagSet("cromkt", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "path to configuration file")
	_ = fs.Parse(extractConfigArgs(os.Args[1:]))

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI logs go to stderr so stdout stays parseable.
	logger, err := logging.NewLogger(logging.Config{
		Level:            "warn",
		Format:           "console",
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := platform.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("assemble platform: %w", err)
	}
	defer p.Close()

	root := cli.NewRootCommand(cli.Dependencies{
		Ingestion:   p.Ingestion,
		Prediction:  p.Prediction,
		Submissions: p.Submissions,
		Logger:      logger,
	})
	root.PersistentFlags().String("config", defaultConfigPath, "path to configuration file")
	return root.ExecuteContext(ctx)
}

// extractConfigArgs keeps only the --config flag and its value so the
// pre-parse ignores cobra's flags.
func extractConfigArgs(args []string) []string {
	out := make([]string, 0, 2)
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" || args[i] == "-config":
			out = append(out, args[i])
			if i+1 < len(args) {
				out = append(out, args[i+1])
				i++
			}
		case strings.HasPrefix(args[i], "--config="), strings.HasPrefix(args[i], "-config="):
			out = append(out, args[i])
		}
	}
	return out
}
