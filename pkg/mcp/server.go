package mcp

import (
	"context"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"portal-harvester/pkg/config"
	"portal-harvester/pkg/orchestrate"
	"portal-harvester/pkg/storage"
)

const (
	serverName    = "portal-harvester"
	serverVersion = "0.4.0"
)

// JobRunner is one harvest as driven by a background job
type JobRunner interface {
	Run(ctx context.Context) (*orchestrate.Report, error)
	Progress() orchestrate.Progress
}

// RunnerFactory builds the runner for one job from a per-job config copy.
// The returned closer is called when the job ends.
type RunnerFactory func(cfg *config.AppConfig, log *logrus.Entry) (JobRunner, io.Closer, error)

// ServerConfig holds configuration for the MCP server
type ServerConfig struct {
	AppConfig  *config.AppConfig // must already be validated
	ConfigPath string
	Transport  string // "stdio" or "sse"
	Port       int
	Logger     *logrus.Logger
	NewRunner  RunnerFactory // nil uses the orchestrator with the configured index sink
}

// Server exposes harvest operations as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	cfg        *ServerConfig
	comp       *orchestrate.Components
	log        *logrus.Entry
	jobManager *JobManager
}

// NewServer creates a new MCP server instance
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg.AppConfig == nil {
		return nil, fmt.Errorf("AppConfig is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.NewRunner == nil {
		cfg.NewRunner = defaultRunnerFactory
	}
	log := cfg.Logger.WithField("component", "mcp")

	comp, err := orchestrate.NewComponents(cfg.AppConfig, log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		mcpServer:  server.NewMCPServer(serverName, serverVersion, server.WithLogging()),
		cfg:        cfg,
		comp:       comp,
		log:        log,
		jobManager: NewJobManager(),
	}
	s.registerTools()
	return s, nil
}

func defaultRunnerFactory(cfg *config.AppConfig, log *logrus.Entry) (JobRunner, io.Closer, error) {
	comp, err := orchestrate.NewComponents(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	sink, err := storage.NewSink(cfg.Index, log)
	if err != nil {
		return nil, nil, err
	}
	return orchestrate.NewRunner(comp, sink, log), sink, nil
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("harvest",
		mcp.WithDescription("Start a background harvest of the configured portal. Returns immediately with a job ID."),
		mcp.WithNumber("max_pages", mcp.Description("Override budget.max_total_pages for this run")),
		mcp.WithNumber("max_depth", mcp.Description("Override budget.max_depth for this run")),
	), s.handleHarvest)

	s.mcpServer.AddTool(mcp.NewTool("get_job_status",
		mcp.WithDescription("Get the status and live progress of a harvest job"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("The job ID returned by harvest")),
	), s.handleGetJobStatus)

	s.mcpServer.AddTool(mcp.NewTool("cancel_job",
		mcp.WithDescription("Cancel a running harvest job. Partial results are still written."),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("The job ID returned by harvest")),
	), s.handleCancelJob)

	s.mcpServer.AddTool(mcp.NewTool("get_run_summary",
		mcp.WithDescription("Return the summary of the most recent finished harvest"),
	), s.handleGetRunSummary)

	s.mcpServer.AddTool(mcp.NewTool("classify_url",
		mcp.WithDescription("Normalize a URL and report its scope decision, category and tier without fetching it"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute or portal-relative URL")),
	), s.handleClassifyURL)

	s.mcpServer.AddTool(mcp.NewTool("fetch_page",
		mcp.WithDescription("Fetch one page through the page fetcher and return its outcome, title and markdown"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute or portal-relative URL")),
		mcp.WithNumber("max_chars", mcp.Description("Truncate returned markdown (default 4000)")),
	), s.handleFetchPage)

	s.log.Infof("Registered %d MCP tools", 6)
}

// Run starts the MCP server with the configured transport
func (s *Server) Run() error {
	switch s.cfg.Transport {
	case "stdio", "":
		s.log.Info("Starting MCP server with stdio transport")
		return server.ServeStdio(s.mcpServer)
	case "sse":
		addr := fmt.Sprintf(":%d", s.cfg.Port)
		s.log.Infof("Starting MCP server with SSE transport on %s", addr)
		return server.NewSSEServer(s.mcpServer).Start(addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, sse)", s.cfg.Transport)
	}
}

// Shutdown cancels running jobs
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down MCP server...")
	s.jobManager.CancelAll()
	return nil
}
