// Package main is the Kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// serverEnv names the variable that supplies the default --server URL.
const serverEnv = "KOTAE_SERVER"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// A missing default config falls back to built-in defaults so that a fresh install
// works with environment variables alone.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			dir := filepath.Dir(path)
			if err := config.LoadEnv(dir); err != nil {
				return nil, "", err
			}
			cfg := config.Default(dir)
			return cfg, "", cfg.Validate()
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	var err error
	switch command {
	case "server":
		err = runServer(args)
	case "ingest":
		err = runIngest(args)
	case "ask":
		err = runAsk(args)
	case "remove":
		err = runRemove(args)
	case "sources":
		err = runSources(args)
	case "providers":
		err = runProviders(args)
	case "status":
		err = runStatus(args)
	case "eval":
		err = runEval(args)
	case "init":
		err = runInit(args)
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// commonFlags are shared by every command that can run locally or against a server.
type commonFlags struct {
	configPath *string
	serverURL  *string
	output     *string
	debug      *bool
}

func addCommonFlags(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		serverURL:  fs.String("server", os.Getenv(serverEnv), "server URL (empty = open the index directly; default from "+serverEnv+")"),
		output:     fs.String("output", "text", "output format: text or json"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

func (f commonFlags) format() (cli.OutputFormat, error) {
	return cli.ParseFormat(*f.output)
}

// openLocal loads config and initializes components for direct index access. Outside of
// debug mode only warnings and errors are logged so that command output stays readable.
func (f commonFlags) openLocal() (*Components, func(), error) {
	cfg, _, err := loadConfig(*f.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *f.debug
	logger, err := utils.NewLogger(debugMode, cfg.LogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	if !debugMode {
		logger = logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return components, func() {
		components.Close()
		_ = logger.Sync()
	}, nil
}

func runServer(args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (file ingestion, provider attempts, etc.)")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode, cfg.LogPath)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Watch.Enabled {
		watchSvc := watcher.NewWatcher(cfg.Storage.UploadsDir, cfg.Watch.Extensions, components.Indexer, watcher.WithLogger(logger))
		if err := watchSvc.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		n := watchSvc.SyncExistingFiles()
		logger.Info("watching uploads directory", zap.String("dir", watchSvc.Dir()), zap.Int("existing_files", n))
	}

	srv := server.NewServer(components.Deps())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		logger.Error("Server failed", zap.Error(err))
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(args)
	if fs.NArg() < 1 {
		return errors.New("usage: kotae ingest [flags] <file-or-directory>...")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *flags.serverURL != "" {
		client := newAPIClient(*flags.serverURL)
		var errs []error
		for _, path := range supportedFiles(fs.Args(), &errs) {
			res, err := client.Upload(ctx, path)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", path, err))
				continue
			}
			fmt.Printf("Ingested %s (%d chunks)\n", res.Source, res.Chunks)
		}
		return errors.Join(errs...)
	}

	components, closeFn, err := flags.openLocal()
	if err != nil {
		return err
	}
	defer closeFn()
	var errs []error
	for _, path := range fs.Args() {
		info, err := os.Stat(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if info.IsDir() {
			files, chunks, err := components.Indexer.IngestDirectory(ctx, path)
			fmt.Printf("Ingested %d files (%d chunks) from %s\n", files, chunks, path)
			if err != nil {
				errs = append(errs, err)
			}
			continue
		}
		n, err := components.Indexer.IngestFile(ctx, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		fmt.Printf("Ingested %s (%d chunks)\n", filepath.Base(path), n)
	}
	return errors.Join(errs...)
}

// supportedFiles expands directories into the supported files below them. Explicit file
// arguments are kept as-is so that the server reports unsupported formats.
func supportedFiles(paths []string, errs *[]error) []string {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			*errs = append(*errs, err)
			continue
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && extract.Supported(filepath.Ext(path)) {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			*errs = append(*errs, err)
		}
	}
	return out
}

func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	flags := addCommonFlags(fs)
	stream := fs.Bool("stream", false, "print the answer as it is generated")
	_ = fs.Parse(args)
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return errors.New("usage: kotae ask [flags] <question>")
	}
	format, err := flags.format()
	if err != nil {
		return err
	}
	// Tokens are only printed live for text output.
	live := *stream && format == cli.OutputText

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res *models.AnswerResult
	if *flags.serverURL != "" {
		client := newAPIClient(*flags.serverURL)
		if *stream {
			res, err = client.AnswerStream(ctx, question, printToken(live))
		} else {
			res, err = client.Answer(ctx, question)
		}
	} else {
		components, closeFn, openErr := flags.openLocal()
		if openErr != nil {
			return openErr
		}
		defer closeFn()
		if *stream {
			res, err = streamLocal(ctx, components.Engine, question, printToken(live))
		} else {
			res, err = components.Engine.Answer(ctx, question)
		}
	}
	if err != nil {
		return err
	}
	if live {
		fmt.Println()
		cli.WriteCitations(os.Stdout, res.Citations)
		return nil
	}
	return cli.WriteAnswer(os.Stdout, res, format)
}

func printToken(live bool) func(string) {
	if !live {
		return nil
	}
	return func(s string) { fmt.Print(s) }
}

// streamLocal drains an answer stream from the local engine, passing each fragment to
// onToken as it arrives.
func streamLocal(ctx context.Context, engine *rag.Engine, question string, onToken func(string)) (*models.AnswerResult, error) {
	sa, err := engine.AnswerStream(ctx, question)
	if err != nil {
		return nil, err
	}
	if onToken == nil {
		return rag.CollectAnswer(sa)
	}
	defer sa.Tokens.Close()
	var text strings.Builder
	for fragment, err := range sa.Tokens.Fragments() {
		if err != nil {
			return nil, err
		}
		text.WriteString(fragment)
		onToken(fragment)
	}
	return &models.AnswerResult{
		Answer:    rag.NormalizeAnswer(text.String()),
		Citations: sa.Citations,
		Grounded:  sa.Grounded,
		Intent:    sa.Intent,
	}, nil
}

func runRemove(args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: kotae remove [flags] <source>")
	}
	source := fs.Arg(0)
	ctx := context.Background()

	var n int
	var err error
	if *flags.serverURL != "" {
		n, err = newAPIClient(*flags.serverURL).RemoveSource(ctx, source)
	} else {
		components, closeFn, openErr := flags.openLocal()
		if openErr != nil {
			return openErr
		}
		defer closeFn()
		n, err = components.Indexer.RemoveSource(ctx, source)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("source %q not found", source)
	}
	fmt.Printf("Removed %s (%d chunks)\n", source, n)
	return nil
}

func runSources(args []string) error {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(args)
	format, err := flags.format()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var sources []models.SourceSummary
	if *flags.serverURL != "" {
		sources, err = newAPIClient(*flags.serverURL).Sources(ctx)
	} else {
		components, closeFn, openErr := flags.openLocal()
		if openErr != nil {
			return openErr
		}
		defer closeFn()
		sources, err = components.Indexer.Sources(ctx)
	}
	if err != nil {
		return err
	}
	return cli.WriteSources(os.Stdout, sources, format)
}

func runProviders(args []string) error {
	fs := flag.NewFlagSet("providers", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(args)
	format, err := flags.format()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var report *models.ProvidersReport
	if *flags.serverURL != "" {
		report, err = newAPIClient(*flags.serverURL).Providers(ctx)
		if err != nil {
			return err
		}
	} else {
		components, closeFn, openErr := flags.openLocal()
		if openErr != nil {
			return openErr
		}
		defer closeFn()
		report = server.BuildProviders(ctx, components.Deps())
	}
	return cli.WriteProviders(os.Stdout, report, format)
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(args)
	format, err := flags.format()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var status *models.StatusReport
	if *flags.serverURL != "" {
		status, err = newAPIClient(*flags.serverURL).Status(ctx)
	} else {
		components, closeFn, openErr := flags.openLocal()
		if openErr != nil {
			return openErr
		}
		defer closeFn()
		status, err = server.BuildStatus(ctx, components.Deps())
	}
	if err != nil {
		return err
	}
	return cli.WriteStatus(os.Stdout, status, format)
}

func runEval(args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	flags := addCommonFlags(fs)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: kotae eval [flags] <cases.csv>")
	}
	format, err := flags.format()
	if err != nil {
		return err
	}
	cases, err := readEvalFile(fs.Arg(0))
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var answerer rag.Answerer
	if *flags.serverURL != "" {
		answerer = newAPIClient(*flags.serverURL)
	} else {
		components, closeFn, openErr := flags.openLocal()
		if openErr != nil {
			return openErr
		}
		defer closeFn()
		answerer = components.Engine
	}
	summary, err := rag.Evaluate(ctx, answerer, cases)
	if summary != nil {
		if writeErr := cli.WriteEval(os.Stdout, summary, format); writeErr != nil {
			return writeErr
		}
	}
	return err
}

func readEvalFile(path string) ([]rag.EvalCase, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return rag.ReadEvalCases(f)
}

func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "where to write the config file")
	force := fs.Bool("force", false, "overwrite an existing config file")
	_ = fs.Parse(args)
	return writeDefaultConfig(os.Stdout, *configPath, *force)
}

// writeDefaultConfig writes the built-in defaults with environment references left in
// place, so that secrets stay in the environment or a .env file.
func writeDefaultConfig(out io.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %s\n", path)
	return nil
}

func printUsage() {
	fmt.Println(`kotae - Grounded question answering over your documents

Usage:
  kotae server [flags]                   Start the HTTP server (and the uploads watcher)
  kotae ingest [flags] <path>...         Ingest documents or directories
  kotae ask [flags] <question>           Answer a question from the ingested documents
  kotae remove [flags] <source>          Remove a document from the index
  kotae sources [flags]                  List ingested documents
  kotae providers [flags]                Show embedding and generation provider availability
  kotae status [flags]                   Show index and storage status
  kotae eval [flags] <cases.csv>         Run a retrieval evaluation (columns: question, expected_source)
  kotae init [flags]                     Write a default config file
  kotae version                          Show version
  kotae help                             Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Common Flags (ingest, ask, remove, sources, providers, status, eval):
  --config string    Config file path (for direct index mode)
  --server string    Server URL. Empty (the default unless KOTAE_SERVER is set) opens the index directly.
                     Use the server while it is running so that one process owns the index.
  --output string    Output format: text or json (default: text)
  --debug            Enable debug logging

Ask Flags:
  --stream           Print the answer as it is generated

Init Flags:
  --config string    Where to write the config (default: /usr/local/etc/kotae/config.yaml)
  --force            Overwrite an existing file

Examples:
  kotae init --config ./config.yaml
  kotae ingest ~/Documents/handbook
  kotae ask "How many days of annual leave do I get?"
  kotae ask --stream --server http://localhost:8080 "What is the remote work policy?"
  kotae sources --output json
  kotae remove handbook.pdf
  kotae eval testdata/questions.csv`)
}
