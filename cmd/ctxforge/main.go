// Command ctxforge runs the context retrieval engine: an HTTP server for
// the retrieval API plus maintenance commands against the same index.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	ctxforge "github.com/ctxforge/ctxforge"
	"github.com/ctxforge/ctxforge/helper"
	"github.com/ctxforge/ctxforge/model"
	"github.com/ctxforge/ctxforge/server"
	"github.com/ctxforge/ctxforge/source"
)

var (
	configPath  string
	listenAddr  string
	syncSources []string
)

var rootCmd = &cobra.Command{
	Use:           "ctxforge",
	Short:         "Context retrieval and ranking engine",
	Long:          "ctxforge indexes support content from tickets, notes, articles and transcripts\nand serves re-ranked, token-budgeted context payloads with citations.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the retrieval HTTP server",
	RunE:  runServe,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed every indexed chunk with the configured provider",
	RunE:  runReindex,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and all of its chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync pass over NDJSON change-log sources",
	Long:  "Each --source flag names one change-log file as name=path. The cursor of every\nsource is persisted, so re-running sync only applies new lines.",
	RunE:  runSync,
}

var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Run one retrieval query and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the engine TOML config (defaults apply when empty)")
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "listen address of the HTTP server")
	syncCmd.Flags().StringArrayVar(&syncSources, "source", nil, "change-log source as name=path (repeatable)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queryCmd)
}

// newEngine loads both configurations and wires a ready engine.
func newEngine() (*ctxforge.Engine, error) {
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		return nil, fmt.Errorf("database configuration: %w", err)
	}

	engineConfig := model.DefaultEngineConfig()
	if configPath != "" {
		engineConfig, err = helper.LoadEngineConfig(configPath)
		if err != nil {
			return nil, err
		}
	}

	return ctxforge.NewEngine(dbConfig, engineConfig)
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := server.NewServer(engine, engine.Logger)
	return httpServer.ListenAndServe(ctx, listenAddr)
}

func runReindex(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Reindex(ctx)
}

func runDelete(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.DeleteDocument(context.Background(), args[0]); err != nil {
		return err
	}

	cmd.Printf("Deleted document %s\n", args[0])
	return nil
}

func runSync(cmd *cobra.Command, args []string) error {
	if len(syncSources) == 0 {
		return fmt.Errorf("at least one --source name=path is required")
	}

	adapters := make([]source.Adapter, 0, len(syncSources))
	for _, spec := range syncSources {
		name, path, found := strings.Cut(spec, "=")
		if !found || name == "" || path == "" {
			return fmt.Errorf("invalid --source %q, expected name=path", spec)
		}
		adapters = append(adapters, source.NewFileAdapter(name, path))
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncer, err := engine.NewSyncer(adapters, time.Minute)
	if err != nil {
		return err
	}

	return syncer.SyncAll(ctx)
}

func runQuery(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.Retrieve(context.Background(), model.RetrievalQuery{Text: args[0]})
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
