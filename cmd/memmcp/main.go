package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kopertop/go-mem-mcp/internal/tools"
	"github.com/kopertop/go-mem-mcp/pkg/core"
	"github.com/kopertop/go-mem-mcp/pkg/embed"
)

const version = "0.1.0"

var (
	dbPath        string
	modelPath     string
	tokenizerPath string
	onnxLibPath   string
	dimensions    int
)

var rootCmd = &cobra.Command{
	Use:   "memmcp",
	Short: "Semantic memory store with an MCP tool surface",
	Long: `memmcp stores short text memories in SQLite, embeds them with a local
sentence-transformer model, and retrieves them by semantic similarity.
Run 'memmcp serve' to expose the store as MCP tools over stdio.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the memory tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		// MCP talks JSON-RPC on stdout, so all logging goes to stderr.
		logger := log.New(os.Stderr)

		svc, err := newService(logger)
		if err != nil {
			return err
		}

		if err := svc.Initialize(cmd.Context()); err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}

		srv := server.NewMCPServer("go-mem-mcp", version,
			server.WithToolCapabilities(false),
		)
		tools.Register(srv, svc)

		logger.Info("serving memory tools over stdio", "db", dbPath)
		return server.ServeStdio(srv)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the memory database",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := core.NewStore(dbPath, log.New(os.Stderr))
		defer store.Close()

		if err := store.Init(cmd.Context()); err != nil {
			return fmt.Errorf("failed to initialize store: %w", err)
		}

		fmt.Printf("Memory database initialized at %s\n", dbPath)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <content>",
	Short: "Store a new memory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		agentID, _ := cmd.Flags().GetString("agent")
		metadataStr, _ := cmd.Flags().GetString("metadata")

		var metadata core.Metadata
		if metadataStr != "" {
			if err := json.Unmarshal([]byte(metadataStr), &metadata); err != nil {
				return fmt.Errorf("invalid metadata JSON: %w", err)
			}
		}

		svc, err := newService(log.New(os.Stderr))
		if err != nil {
			return err
		}

		m, err := svc.AddMemory(cmd.Context(), args[0], sessionID, agentID, metadata)
		if err != nil {
			return fmt.Errorf("failed to add memory: %w", err)
		}

		fmt.Printf("Memory '%s' stored\n", m.ID)
		if m.Embedding == nil {
			fmt.Println("Note: stored without an embedding; it will not appear in semantic search")
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memories by semantic similarity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		agentID, _ := cmd.Flags().GetString("agent")
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		limit, _ := cmd.Flags().GetInt("limit")

		svc, err := newService(log.New(os.Stderr))
		if err != nil {
			return err
		}

		results, err := svc.SearchMemories(cmd.Context(), args[0], core.SearchOptions{
			Threshold: threshold,
			Limit:     limit,
			Filter:    core.Filter{SessionID: sessionID, AgentID: agentID},
		})
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if len(results) == 0 {
			fmt.Println("No matching memories")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%.4f  %s  %s\n", r.Similarity, r.Memory.ID, r.Memory.Content)
		}
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memories, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		agentID, _ := cmd.Flags().GetString("agent")

		svc, err := newService(log.New(os.Stderr))
		if err != nil {
			return err
		}

		memories, err := svc.GetAllMemories(cmd.Context(), core.Filter{
			SessionID: sessionID,
			AgentID:   agentID,
		})
		if err != nil {
			return fmt.Errorf("failed to list memories: %w", err)
		}

		if len(memories) == 0 {
			fmt.Println("No memories stored")
			return nil
		}
		for _, m := range memories {
			fmt.Printf("%s  %s  %s\n", m.ID, m.CreatedAt.Format("2006-01-02 15:04"), m.Content)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a memory by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(log.New(os.Stderr))
		if err != nil {
			return err
		}

		m, err := svc.GetMemory(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get memory: %w", err)
		}
		if m == nil {
			return fmt.Errorf("memory '%s': %w", args[0], core.ErrNotFound)
		}

		out, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a memory by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(log.New(os.Stderr))
		if err != nil {
			return err
		}

		deleted, err := svc.DeleteMemory(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to delete memory: %w", err)
		}
		if !deleted {
			return fmt.Errorf("memory '%s': %w", args[0], core.ErrNotFound)
		}

		fmt.Printf("Memory '%s' deleted\n", args[0])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := newService(log.New(os.Stderr))
		if err != nil {
			return err
		}

		stats, err := svc.Stats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Memories: %d (%d with embeddings)\n", stats.Count, stats.Embedded)
		return nil
	},
}

// newService builds the composition root: store, embedder, and service. An
// ONNX embedder is used when a model path is configured; otherwise the
// deterministic hash embedder keeps the CLI usable without model files.
func newService(logger *log.Logger) (*core.Service, error) {
	cfg := core.DefaultConfig()
	cfg.Path = dbPath
	cfg.Dimensions = dimensions
	cfg.ModelPath = modelPath
	cfg.TokenizerPath = tokenizerPath
	cfg.ONNXLibraryPath = onnxLibPath

	var embedder core.Embedder
	if cfg.ModelPath != "" {
		onnx, err := embed.NewONNX(embed.ONNXConfig{
			ModelPath:     cfg.ModelPath,
			TokenizerPath: cfg.TokenizerPath,
			LibraryPath:   cfg.ONNXLibraryPath,
			Dimensions:    cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		embedder = onnx
	} else {
		logger.Warn("no model configured, using hash embedder", "hint", "pass --model and --tokenizer for semantic embeddings")
		embedder = embed.NewHashEmbedder(cfg.Dimensions)
	}

	store := core.NewStore(cfg.Path, logger)
	return core.NewService(store, embedder, cfg, logger), nil
}

func init() {
	defaults := core.DefaultConfig()

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", defaults.Path, "SQLite database file path")
	rootCmd.PersistentFlags().StringVar(&modelPath, "model", os.Getenv("MEMMCP_MODEL"), "ONNX embedding model path")
	rootCmd.PersistentFlags().StringVar(&tokenizerPath, "tokenizer", os.Getenv("MEMMCP_TOKENIZER"), "tokenizer.json path")
	rootCmd.PersistentFlags().StringVar(&onnxLibPath, "onnx-lib", os.Getenv("MEMMCP_ONNX_LIB"), "onnxruntime shared library path")
	rootCmd.PersistentFlags().IntVar(&dimensions, "dim", defaults.Dimensions, "embedding vector dimensions")

	addCmd.Flags().String("session", "", "session identifier")
	addCmd.Flags().String("agent", "", "agent identifier")
	addCmd.Flags().String("metadata", "", "metadata as JSON object")

	searchCmd.Flags().String("session", "", "filter by session identifier")
	searchCmd.Flags().String("agent", "", "filter by agent identifier")
	searchCmd.Flags().Float64("threshold", 0, fmt.Sprintf("similarity threshold in [0,1] (default %.1f)", core.DefaultThreshold))
	searchCmd.Flags().Int("limit", 0, fmt.Sprintf("maximum results (default %d)", core.DefaultLimit))

	listCmd.Flags().String("session", "", "filter by session identifier")
	listCmd.Flags().String("agent", "", "filter by agent identifier")

	rootCmd.AddCommand(serveCmd, initCmd, addCmd, searchCmd, listCmd, getCmd, deleteCmd, statsCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
