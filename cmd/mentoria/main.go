// Package main is the mentoria CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/mentoria/internal/cli"
	"github.com/hyperjump/mentoria/internal/config"
	"github.com/hyperjump/mentoria/internal/models"
	"github.com/hyperjump/mentoria/internal/progress"
	"github.com/hyperjump/mentoria/internal/server"
	"github.com/hyperjump/mentoria/internal/storage"
	"github.com/hyperjump/mentoria/internal/tutor"
	"github.com/hyperjump/mentoria/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/mentoria/config.yaml"
	defaultServerURL  = "http://localhost:8000"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory; if neither exists the built-in defaults
// rooted at the current directory are used and the returned path is empty.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", err
		}
		fallback := filepath.Join(cwd, "config.yaml")
		if _, statErr := os.Stat(fallback); statErr == nil {
			cfg, loadErr := config.Load(fallback)
			if loadErr != nil {
				return nil, "", loadErr
			}
			return cfg, fallback, nil
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(cwd), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "progress":
		runProgress()
	case "award":
		runAward()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("mentoria version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and wires components for direct mode.
func setup(configPath string, debug bool) (*config.Config, string, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, resolved, logger, components
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolved, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	logger.Info("config loaded", zap.String("config_path", resolved))

	srv := server.NewServer(server.Deps{
		Tutor:      components.Tutor,
		Engine:     components.Engine,
		Tracker:    components.Tracker,
		Agents:     components.Agents,
		Storage:    components.Storage,
		Config:     cfg,
		ConfigPath: resolved,
		Version:    version,
		Logger:     logger,
	})
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: mentoria search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Hits come from the agent's own index, or the shared default index when the agent has none.
Filters are substring matches applied after the top-k cut, so fewer than k hits may be returned.

Examples:
  mentoria search recursão em python
  mentoria search -agent planner -k 3 "plano de estudos"
  mentoria search -subject algoritmos -output json pilha
  mentoria search -server "" recursão          # direct mode, no server needed
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func searchArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// searchFilters builds a filter map from the flags that were explicitly set.
// It returns nil when none were, so agent default filters apply.
func searchFilters(fs *flag.FlagSet, values map[string]*string) map[string]string {
	var filters map[string]string
	fs.Visit(func(f *flag.Flag) {
		v, ok := values[f.Name]
		if !ok {
			return
		}
		if filters == nil {
			filters = make(map[string]string)
		}
		filters[f.Name] = *v
	})
	return filters
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = search directly without a running server)")
	agentID := fs.String("agent", "", "agent id (default: configured default agent)")
	k := fs.Int("k", 0, "number of hits (default: agent rag_k)")
	filterValues := map[string]*string{
		models.FilterSource:  fs.String(models.FilterSource, "", "only hits whose source contains this text"),
		models.FilterSubject: fs.String(models.FilterSubject, "", "only hits whose subject contains this text"),
		models.FilterID:      fs.String(models.FilterID, "", "only hits whose id contains this text"),
		models.FilterText:    fs.String(models.FilterText, "", "only hits whose text contains this text"),
	}
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	query := models.SearchQuery{
		Query:   queryStr,
		K:       *k,
		AgentID: *agentID,
		Filters: searchFilters(fs, filterValues),
	}

	var hits []models.RetrievalHit
	if *serverURL != "" {
		res, err := newAPIClient(*serverURL).retrieve(query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		hits = res.Hits
	} else {
		_, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		if query.AgentID == "" {
			query.AgentID = components.Agents.Default()
		}
		hits, err = components.Engine.Search(context.Background(), query.Query, query.K, query.AgentID, query.Filters)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteHits(os.Stdout, queryStr, hits, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runProgress() {
	fs := flag.NewFlagSet("progress", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the database directly)")
	sessionID := fs.String("session", tutor.DefaultSessionID, "session id")
	agentID := fs.String("agent", "", "agent id (default: configured default agent)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var summary *models.ProgressSummary
	if *serverURL != "" {
		summary, err = newAPIClient(*serverURL).progress(*sessionID, *agentID)
	} else {
		_, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		summary, err = components.Tracker.Get(context.Background(), *sessionID, agentOrDefault(*agentID, components))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Progress failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteProgress(os.Stdout, summary, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runAward() {
	fs := flag.NewFlagSet("award", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = write the database directly)")
	sessionID := fs.String("session", tutor.DefaultSessionID, "session id")
	agentID := fs.String("agent", "", "agent id (default: configured default agent)")
	amount := fs.Int("amount", 0, "XP to award (negative values award nothing)")
	reason := fs.String("reason", "manual", "reason recorded on the xp event")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var summary *models.ProgressSummary
	if *serverURL != "" {
		summary, err = newAPIClient(*serverURL).award(*sessionID, *agentID, *amount, *reason)
	} else {
		_, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		summary, err = components.Tracker.Award(context.Background(), *sessionID, agentOrDefault(*agentID, components),
			progress.AwardInput{Amount: *amount, Reason: *reason})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Award failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteProgress(os.Stdout, summary, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func agentOrDefault(agentID string, c *Components) string {
	if strings.TrimSpace(agentID) == "" {
		return c.Agents.Default()
	}
	return agentID
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var status *statusResponse
	if *serverURL != "" {
		status, err = newAPIClient(*serverURL).status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, logger, components := setup(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		status, err = directStatus(context.Background(), cfg, components)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := writeStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func directStatus(ctx context.Context, cfg *config.Config, c *Components) (*statusResponse, error) {
	progressCount, err := c.Storage.CountProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("count progress: %w", err)
	}
	eventCount, err := c.Storage.CountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	status := &statusResponse{
		Version:       version,
		Progress:      progressCount,
		Events:        eventCount,
		LoadedCorpora: c.Engine.Corpora(),
		Agents:        c.Agents.IDs(),
		Config: &statusConfig{
			EmbeddingProvider:   cfg.Embedding.Provider,
			EmbeddingModel:      cfg.Embedding.Model,
			EmbeddingDimensions: cfg.Embedding.Dimensions,
			CompletionProvider:  cfg.Completion.Provider,
			IndexType:           cfg.Storage.IndexType,
			IndexDir:            cfg.Storage.IndexDir,
			DatabasePath:        cfg.Storage.DatabasePath,
			DefaultAgent:        cfg.DefaultAgent,
		},
	}
	if usage, err := storage.MeasureUsage(cfg.Storage.DatabasePath, cfg.Storage.IndexDir); err == nil {
		total := usage.Total()
		status.DiskUsageBytes = &total
		status.DiskUsage = &usage
	}
	return status, nil
}

func printUsage() {
	fmt.Println(`mentoria - tutoring backend with retrieval and learner progress

Usage:
  mentoria server [flags]            Start the HTTP server
  mentoria search [flags] <query>    Retrieve corpus passages for an agent
  mentoria progress [flags]          Show a learner's progress
  mentoria award [flags]             Award XP to a learner
  mentoria status [flags]            Show storage and index status
  mentoria version                   Show version
  mentoria help                      Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/mentoria/config.yaml, or ./config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8000). Use --server "" to search directly.
  --agent string     Agent id (default: configured default agent)
  --k int            Number of hits (default: agent rag_k)
  --source, --subject, --id, --text string
                     Substring filters; setting any replaces the agent's default filters
  --output string    Output format: text or json (default: text)

Progress / Award Flags:
  --session string   Session id (default: default)
  --agent string     Agent id
  --amount int       XP to award (award only)
  --reason string    Reason recorded on the xp event (award only)
  --server string    Server URL; empty reads and writes the database directly

Status Flags:
  --server string    Server URL (default: http://localhost:8000). Use empty (--server "") for direct storage.
  --output string    Output format: text or json (default: text)

Environment:
  OPENAI_API_KEY, OPENAI_BASE_URL are read from the environment or a .env file.

Examples:
  mentoria server
  mentoria search "o que é recursão"
  mentoria search -agent planner -output json "plano de estudos"
  mentoria progress -session s1 -agent tutor
  mentoria award -session s1 -amount 10 -reason bonus
  mentoria status --output json`)
}
