package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"portal-harvester/pkg/models"
	"portal-harvester/pkg/orchestrate"
	"portal-harvester/pkg/output"
	"portal-harvester/pkg/utils"
)

const defaultPreviewChars = 4000

// handleHarvest handles the harvest tool
func (s *Server) handleHarvest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	maxPages := request.GetInt("max_pages", 0)
	maxDepth := request.GetInt("max_depth", 0)
	if maxPages < 0 || maxDepth < 0 {
		return mcp.NewToolResultError("max_pages and max_depth must not be negative"), nil
	}

	// Per-job copy so overrides never leak into the server config
	jobCfg := *s.cfg.AppConfig
	orchestrate.ApplyOverrides(&jobCfg, maxPages, maxDepth, "")

	portal := jobCfg.Portal.Domain
	job, created := s.jobManager.CreateJob(portal, jobCfg.Budget.MaxTotalPages)
	if !created {
		return mcp.NewToolResultError(fmt.Sprintf("portal %s already has a running harvest (job %s)", portal, job.ID)), nil
	}

	jobLog := s.log.WithField("job_id", job.ID)
	runner, closer, err := s.cfg.NewRunner(&jobCfg, jobLog)
	if err != nil {
		s.jobManager.Finish(job.ID, JobStatusFailed, nil, err.Error())
		return mcp.NewToolResultError(fmt.Sprintf("failed to prepare harvest: %v", err)), nil
	}

	go s.runJob(job.ID, runner, closer)

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_id":    job.ID,
		"portal":    portal,
		"status":    string(JobStatusRunning),
		"max_pages": jobCfg.Budget.MaxTotalPages,
		"max_depth": jobCfg.Budget.MaxDepth,
		"message":   "Harvest started. Use get_job_status to check progress.",
	})), nil
}

func (s *Server) runJob(id string, runner JobRunner, closer io.Closer) {
	log := s.log.WithField("job_id", id)
	defer func() {
		if closer == nil {
			return
		}
		if err := closer.Close(); err != nil {
			log.Warnf("Closing index sink: %v", err)
		}
	}()

	s.jobManager.Start(id, runner.Progress)
	report, err := runner.Run(s.jobManager.Context(id))

	switch {
	case err == nil:
		s.jobManager.Finish(id, JobStatusCompleted, report, "")
		log.Info("Harvest job completed")
	case errors.Is(err, context.Canceled):
		s.jobManager.Finish(id, JobStatusCancelled, report, err.Error())
		log.Warn("Harvest job cancelled")
	default:
		s.jobManager.Finish(id, JobStatusFailed, report, err.Error())
		log.Errorf("Harvest job failed: %v", err)
	}
}

// handleGetJobStatus handles the get_job_status tool
func (s *Server) handleGetJobStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	job, ok := s.jobManager.Get(jobID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("job not found: %s", jobID)), nil
	}

	result := map[string]interface{}{
		"job_id":        job.ID,
		"portal":        job.Portal,
		"status":        string(job.Status),
		"started_at":    job.StartedAt.Format(time.RFC3339),
		"max_pages":     job.MaxPages,
		"pages_fetched": job.PagesFetched,
		"documents":     job.Documents,
	}
	if job.RunID != "" {
		result["run_id"] = job.RunID
	}
	if job.Status == JobStatusRunning && job.progress != nil {
		p := job.progress()
		result["stage"] = p.Stage
		result["phase"] = string(p.Phase)
		result["failures"] = p.Failures
		result["frontier_size"] = p.FrontierSize
		if p.CurrentURL != "" {
			result["current_url"] = p.CurrentURL
		}
	}
	if !job.CompletedAt.IsZero() {
		result["completed_at"] = job.CompletedAt.Format(time.RFC3339)
		result["duration"] = job.CompletedAt.Sub(job.StartedAt).Round(time.Second).String()
	}
	if job.OutputDir != "" {
		result["output_dir"] = job.OutputDir
	}
	if job.ErrorMessage != "" {
		result["error"] = job.ErrorMessage
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleCancelJob handles the cancel_job tool
func (s *Server) handleCancelJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID := request.GetString("job_id", "")
	if jobID == "" {
		return mcp.NewToolResultError("job_id parameter is required"), nil
	}
	if !s.jobManager.Cancel(jobID) {
		return mcp.NewToolResultError(fmt.Sprintf("job %s is not running", jobID)), nil
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"job_id": jobID,
		"status": string(JobStatusCancelled),
	})), nil
}

// handleGetRunSummary handles the get_run_summary tool
func (s *Server) handleGetRunSummary(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := s.cfg.AppConfig
	summary, dir, err := output.LatestSummary(output.SiteDir(cfg.Output.Dir, cfg.Portal.Domain))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("no finished harvest found: %v", err)), nil
	}
	b, err := json.MarshalIndent(map[string]interface{}{
		"output_dir": dir,
		"summary":    summary,
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode summary: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// handleClassifyURL handles the classify_url tool
func (s *Server) handleClassifyURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := request.GetString("url", "")
	if raw == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	normalized, err := s.comp.Normalizer.Normalize(raw, s.cfg.AppConfig.Portal.BaseURL)
	if err != nil {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"url":      raw,
			"in_scope": false,
			"reason":   err.Error(),
		})), nil
	}

	result := map[string]interface{}{
		"url":        raw,
		"normalized": normalized,
		"in_scope":   s.comp.Classifier.InScope(normalized),
	}
	category := s.comp.Classifier.Categorize(normalized)
	result["category"] = string(category)
	if category == models.CategoryOther {
		result["tier"] = string(s.comp.Classifier.Tier(normalized))
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleFetchPage handles the fetch_page tool
func (s *Server) handleFetchPage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw := request.GetString("url", "")
	if raw == "" {
		return mcp.NewToolResultError("url parameter is required"), nil
	}
	maxChars := request.GetInt("max_chars", defaultPreviewChars)

	normalized, err := s.comp.Normalizer.Normalize(raw, s.cfg.AppConfig.Portal.BaseURL)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid url: %v", err)), nil
	}

	outcome := s.comp.Pages.Fetch(ctx, normalized, 0)
	result := map[string]interface{}{
		"url":        outcome.URL,
		"status":     outcome.Status.String(),
		"elapsed":    outcome.Elapsed.Round(time.Millisecond).String(),
		"link_count": len(outcome.Links),
	}
	if outcome.HTTPCode != 0 {
		result["http_code"] = outcome.HTTPCode
	}
	if outcome.Err != nil {
		result["error"] = outcome.Err.Error()
	}
	if doc := outcome.Document; doc != nil {
		result["title"] = doc.Title
		result["category"] = string(doc.Category)
		result["length"] = doc.Length
		result["quality"] = string(doc.Quality)
		body := doc.Markdown
		if body == "" {
			body = doc.BodyText
		}
		result["content"] = utils.TruncateRunes(body, maxChars, "\n\n[truncated]")
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// formatJSON formats data as an indented JSON string
func formatJSON(data map[string]interface{}) string {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("{\"error\": %q}", err.Error())
	}
	return string(b)
}
