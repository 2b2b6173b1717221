package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/config"
	"portal-harvester/pkg/mcp"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/orchestrate"
	"portal-harvester/pkg/output"
	"portal-harvester/pkg/storage"
	"portal-harvester/pkg/watch"
)

const version = "0.4.0"

const defaultConfigPath = "config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		runCrawl(os.Args[2:])
	case "frontier":
		runFrontier(os.Args[2:])
	case "check":
		runCheck(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "mcp-server":
		runMcpServer(os.Args[2:])
	case "version":
		fmt.Printf("harvester %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `harvester - data portal crawl orchestrator

Usage:
  harvester <command> [options]

Commands:
  crawl       Run one budgeted harvest of the configured portal
  frontier    Build the aggregated frontier and print it as TSV
  check       Run the connectivity diagnostic against key portal URLs
  validate    Validate configuration file
  watch       Re-harvest the portal on a schedule
  mcp-server  Start MCP server for AI tool integration
  version     Show version info

Run 'harvester <command> -h' for command-specific help.`)
}

// loadConfig reads the config file and applies defaults
func loadConfig(path string) (*config.AppConfig, []string, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, warnings, err
	}
	return cfg, warnings, nil
}

func setupLogger(logLevelStr string, out io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(out)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"})
	log.SetLevel(logrus.InfoLevel)

	level, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		log.Warnf("Invalid log level '%s', using default 'info'. Error: %v", logLevelStr, err)
	} else {
		log.SetLevel(level)
	}
	return log
}

// loadForRun loads config and logs its warnings. Returns nil after reporting the error.
func loadForRun(configPath string, log *logrus.Logger) *config.AppConfig {
	log.Infof("Loading configuration from %s", configPath)
	cfg, warnings, err := loadConfig(configPath)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		log.Errorf("Config error: %v", err)
		return nil
	}
	return cfg
}

// signalContext cancels on SIGINT/SIGTERM. A second signal, or a stalled shutdown, forces exit.
func signalContext(log *logrus.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("PANIC in signal handler: %v", r)
			}
		}()
		var sig os.Signal
		select {
		case sig = <-sigChan:
		case <-ctx.Done():
			return
		}
		log.Warnf("Received signal: %v. Initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig = <-sigChan:
			log.Warnf("Received second signal: %v. Forcing exit.", sig)
			os.Exit(1)
		case <-time.After(3 * time.Minute):
			log.Warn("Graceful shutdown period exceeded after signal. Forcing exit.")
			os.Exit(1)
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

func startPprof(addr string, log *logrus.Logger) {
	if addr != "" {
		go func() {
			log.Infof("Starting pprof server at http://%s/debug/pprof/", addr)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.Errorf("pprof server error: %v", err)
			}
		}()
	}
}

// crawlOptions are the per-run overrides accepted by crawl
type crawlOptions struct {
	maxPages  int
	maxDepth  int
	outputDir string
}

func runCrawl(args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")
	maxPages := fs.Int("max-pages", 0, "Override budget.max_total_pages")
	maxDepth := fs.Int("max-depth", 0, "Override budget.max_depth")
	outputDir := fs.String("output", "", "Override output.dir")
	pprofAddr := fs.String("pprof", "", "pprof address, e.g. localhost:6060 (disabled by default)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: harvester crawl [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  harvester crawl -config mosdac.yaml\n")
		fmt.Fprintf(os.Stderr, "  harvester crawl -config mosdac.yaml -max-pages 50 -output ./sample\n")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	startPprof(*pprofAddr, log)
	ctx, stop := signalContext(log)
	code := doCrawl(ctx, *configFile, crawlOptions{*maxPages, *maxDepth, *outputDir}, log, os.Stdout)
	stop()
	os.Exit(code)
}

// doCrawl runs one harvest and prints where the artifacts went.
// Returns exit code (0 = success, 1 = config or setup error, 2 = connectivity abort, 3 = other run error).
func doCrawl(ctx context.Context, configPath string, opts crawlOptions, log *logrus.Logger, stdout io.Writer) int {
	cfg := loadForRun(configPath, log)
	if cfg == nil {
		return 1
	}
	orchestrate.ApplyOverrides(cfg, opts.maxPages, opts.maxDepth, opts.outputDir)

	entry := log.WithField("portal", cfg.Portal.Domain)
	comp, err := orchestrate.NewComponents(cfg, entry)
	if err != nil {
		log.Errorf("Failed to initialize components: %v", err)
		return 1
	}
	sink, err := storage.NewSink(cfg.Index, entry)
	if err != nil {
		log.Errorf("Failed to initialize index sink: %v", err)
		return 1
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warnf("Closing index sink: %v", err)
		}
	}()

	report, err := orchestrate.NewRunner(comp, sink, entry).Run(ctx)
	if report != nil && report.Summary != nil {
		s := report.Summary
		fmt.Fprintf(stdout, "run %s: %d documents from %d pages (coverage %.1f%%)\n",
			s.RunID, s.Documents, s.PagesFetched, s.Coverage*100)
		fmt.Fprintf(stdout, "output: %s\n", report.OutputDir)
	}
	switch {
	case err == nil:
		return 0
	case orchestrate.IsConnectivityFailure(err):
		log.Errorf("Harvest aborted: %v", err)
		return 2
	default:
		log.Errorf("Harvest finished with errors: %v", err)
		return 3
	}
}

func runFrontier(args []string) {
	fs := flag.NewFlagSet("frontier", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: harvester frontier [options]\n\nBuilds the frontier without crawling and writes it to stdout as TSV.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	ctx, stop := signalContext(log)
	code := doFrontier(ctx, *configFile, log, os.Stdout)
	stop()
	os.Exit(code)
}

// doFrontier aggregates the frontier and writes it as TSV to stdout
func doFrontier(ctx context.Context, configPath string, log *logrus.Logger, stdout io.Writer) int {
	cfg := loadForRun(configPath, log)
	if cfg == nil {
		return 1
	}
	entry := log.WithField("portal", cfg.Portal.Domain)
	comp, err := orchestrate.NewComponents(cfg, entry)
	if err != nil {
		log.Errorf("Failed to initialize components: %v", err)
		return 1
	}
	f, err := comp.BuildFrontier(ctx, entry)
	if err != nil {
		log.Errorf("Frontier aggregation failed: %v", err)
		return 1
	}
	if err := output.WriteFrontierTSV(stdout, f.All()); err != nil {
		log.Errorf("Writing frontier: %v", err)
		return 1
	}
	bySource := f.CountBySource()
	log.Infof("Frontier: %d URLs (sitemap %d, systematic %d, discovered %d, fallback %d, manual %d)",
		f.Len(), bySource[models.SourceSitemap], bySource[models.SourceSystematic],
		bySource[models.SourceDiscovered], bySource[models.SourceFallback], bySource[models.SourceManual])
	return 0
}

func runCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")
	logLevel := fs.String("loglevel", "warn", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: harvester check [options]\n\nFetches the base URL, sitemaps and critical URLs once and reports what came back.\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	ctx, stop := signalContext(log)
	code := doCheck(ctx, *configFile, log, os.Stdout)
	stop()
	os.Exit(code)
}

// doCheck prints one diagnosis per URL. Exit code 1 means the connectivity pre-check would abort a crawl.
func doCheck(ctx context.Context, configPath string, log *logrus.Logger, stdout io.Writer) int {
	cfg := loadForRun(configPath, log)
	if cfg == nil {
		return 1
	}
	comp, err := orchestrate.NewComponents(cfg, log.WithField("portal", cfg.Portal.Domain))
	if err != nil {
		log.Errorf("Failed to initialize components: %v", err)
		return 1
	}

	diags, err := comp.Check(ctx)
	for _, d := range diags {
		if d.Error != "" {
			fmt.Fprintf(stdout, "FAIL  %s\n      %s\n", d.URL, d.Error)
			continue
		}
		fmt.Fprintf(stdout, "%-4d  %s  (%s, %d bytes, %s)\n", d.Status, d.URL, d.ContentType, d.Size, d.Elapsed.Round(time.Millisecond))
		if d.Preview != "" {
			fmt.Fprintf(stdout, "      %s\n", d.Preview)
		}
	}
	if err != nil {
		fmt.Fprintf(stdout, "\nConnectivity check FAILED: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "\nConnectivity check passed.")
	return 0
}

func runValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: harvester validate [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doValidate(*configFile, os.Stdout, os.Stderr))
}

// doValidate performs validation and writes output to provided writers.
// Returns exit code (0 = success, 1 = error).
func doValidate(configPath string, stdout, stderr io.Writer) int {
	cfg, warnings, err := loadConfig(configPath)
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "Portal:      %s (domain %s)\n", cfg.Portal.BaseURL, cfg.Portal.Domain)
	fmt.Fprintf(stdout, "Budget:      %d pages, depth %d, delay %s\n", cfg.Budget.MaxTotalPages, cfg.Budget.MaxDepth, cfg.Budget.PolitenessDelay)
	fmt.Fprintf(stdout, "Sources:     %d sitemaps, %d entities, %d seeds, %d fallbacks\n",
		len(cfg.Portal.SitemapURLs), len(cfg.Portal.Entities), len(cfg.Portal.SeedURLs), len(cfg.Portal.FallbackURLs))
	fmt.Fprintf(stdout, "Categories:  %d\n", len(cfg.Classifier.Categories))
	fmt.Fprintf(stdout, "Index sink:  %s\n", cfg.Index.Sink)
	fmt.Fprintln(stdout, "\nConfiguration valid.")
	return 0
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")
	interval := fs.String("interval", "", "Harvest interval, overrides watch.interval (e.g. 30m, 12h, 7d)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: harvester watch [options]\n\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  harvester watch -config mosdac.yaml\n")
		fmt.Fprintf(os.Stderr, "  harvester watch -config mosdac.yaml -interval 12h\n")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	log := setupLogger(*logLevel, os.Stderr)
	ctx, stop := signalContext(log)
	code := doWatch(ctx, *configFile, *interval, log)
	stop()
	os.Exit(code)
}

// doWatch blocks until ctx is cancelled, re-harvesting whenever the portal is due
func doWatch(ctx context.Context, configPath, intervalStr string, log *logrus.Logger) int {
	cfg := loadForRun(configPath, log)
	if cfg == nil {
		return 1
	}
	if intervalStr != "" {
		d, err := watch.ParseInterval(intervalStr)
		if err != nil {
			log.Errorf("Invalid interval: %v", err)
			return 1
		}
		cfg.Watch.Interval = d
	}

	entry := log.WithField("portal", cfg.Portal.Domain)
	comp, err := orchestrate.NewComponents(cfg, entry)
	if err != nil {
		log.Errorf("Failed to initialize components: %v", err)
		return 1
	}
	sink, err := storage.NewSink(cfg.Index, entry)
	if err != nil {
		log.Errorf("Failed to initialize index sink: %v", err)
		return 1
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warnf("Closing index sink: %v", err)
		}
	}()

	var gc watch.GarbageCollector
	if b, ok := sink.(*storage.BadgerSink); ok {
		gc = b
	}

	scheduler := watch.NewScheduler(cfg.Portal.Domain, cfg.Watch.Interval, cfg.Watch.StateDir,
		orchestrate.NewRunner(comp, sink, entry), gc, entry)
	if err := scheduler.Run(ctx); err != nil {
		log.Errorf("Watch scheduler error: %v", err)
		return 1
	}
	log.Info("Watch mode stopped")
	return 0
}

func runMcpServer(args []string) {
	fs := flag.NewFlagSet("mcp-server", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")
	transport := fs.String("transport", "stdio", "Transport type (stdio, sse)")
	port := fs.Int("port", 8080, "HTTP port (for sse transport)")
	logLevel := fs.String("loglevel", "info", "Log level (debug, info, warn, error)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: harvester mcp-server [options]

Start an MCP (Model Context Protocol) server for AI tool integration.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  harvester mcp-server -config mosdac.yaml
  harvester mcp-server -config mosdac.yaml -transport sse -port 8080

Available MCP Tools:
  harvest          Start a background harvest
  get_job_status   Poll a harvest job
  cancel_job       Cancel a harvest job
  get_run_summary  Summary of the last finished harvest
  classify_url     Dry-run URL scope and category
  fetch_page       Fetch one page through the page fetcher
`)
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	os.Exit(doMcpServer(*configFile, *transport, *port, *logLevel, os.Stderr))
}

// doMcpServer is the testable implementation of the MCP server. Logs go to stderr since
// the stdio transport owns stdout.
func doMcpServer(configPath, transport string, port int, logLevel string, stderr io.Writer) int {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid log level: %s\n", logLevel)
		return 1
	}
	if transport != "stdio" && transport != "sse" {
		fmt.Fprintf(stderr, "Unknown transport: %s (supported: stdio, sse)\n", transport)
		return 1
	}
	log := setupLogger(level.String(), stderr)

	appCfg, warnings, err := loadConfig(configPath)
	for _, w := range warnings {
		log.Warn(w)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}

	server, err := mcp.NewServer(&mcp.ServerConfig{
		AppConfig:  appCfg,
		ConfigPath: configPath,
		Transport:  transport,
		Port:       port,
		Logger:     log,
	})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating MCP server: %v\n", err)
		return 1
	}
	defer func() { _ = server.Shutdown(context.Background()) }()

	log.Infof("Starting MCP server (transport: %s)", transport)
	if err := server.Run(); err != nil {
		fmt.Fprintf(stderr, "MCP server error: %v\n", err)
		return 1
	}
	return 0
}
