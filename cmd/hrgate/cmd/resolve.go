package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/hrgate/internal/adapter/outbound/odata"
	"github.com/Sentinel-Gate/hrgate/internal/config"
	"github.com/Sentinel-Gate/hrgate/internal/service"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <user-id|employee-id|email>",
	Short: "Resolve an identifier once and print the directory key",
	Long: `Run the identifier resolver against the configured directory and print
the canonical user key and the lookup that found it. Useful for checking
credentials and entity names before wiring up an MCP client.

Example:
  hrgate resolve jane.doe@example.com
  # jdoe  (disjunctive-search)`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

	client, err := odata.NewClient(odata.Config{
		BaseURL:  cfg.Directory.BaseURL,
		Username: cfg.Directory.Username,
		Password: cfg.Directory.Password,
		Timeout:  config.Duration(cfg.Directory.Timeout, odata.DefaultTimeout),
	}, odata.WithLogger(logger))
	if err != nil {
		return err
	}
	svc := service.NewDirectoryService(client, cfg.DirectorySettings(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := svc.Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t(%s)\n", res.Key, res.Strategy)
	return nil
}
