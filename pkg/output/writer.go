package output

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"portal-harvester/pkg/config"
	"portal-harvester/pkg/models"
	"portal-harvester/pkg/process"
	"portal-harvester/pkg/utils"
)

// Artifact file names inside a run directory
const (
	DocumentsFile = "documents.jsonl"
	ChunksFile    = "chunks.jsonl"
	AttemptsFile  = "attempts.tsv"
	FrontierFile  = "frontier.tsv"
	SummaryFile   = "summary.yaml"
)

// OutputManager writes the artifacts of one run under <dir>/<domain>/<run id>
type OutputManager struct {
	log       *logrus.Entry
	cfg       config.OutputConfig
	tokenizer *process.Tokenizer
	runDir    string
}

// NewOutputManager creates an OutputManager. The directory is created lazily on first write.
func NewOutputManager(cfg config.OutputConfig, domain, runID string, tokenizer *process.Tokenizer, log *logrus.Entry) *OutputManager {
	return &OutputManager{
		log:       log.WithField("component", "output"),
		cfg:       cfg,
		tokenizer: tokenizer,
		runDir:    filepath.Join(SiteDir(cfg.Dir, domain), utils.SanitizeFilename(runID)),
	}
}

// SiteDir is the parent of every run directory for a domain
func SiteDir(baseDir, domain string) string {
	return filepath.Join(baseDir, utils.SanitizeFilename(domain))
}

// Dir returns the run directory
func (om *OutputManager) Dir() string { return om.runDir }

func (om *OutputManager) create(name string) (*os.File, string, error) {
	if err := os.MkdirAll(om.runDir, 0755); err != nil {
		return nil, "", fmt.Errorf("creating run directory '%s': %w", om.runDir, err)
	}
	path := filepath.Join(om.runDir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, "", fmt.Errorf("opening '%s': %w", path, err)
	}
	return f, path, nil
}

// closeFile syncs and closes f, keeping the first error
func (om *OutputManager) closeFile(f *os.File, path string, err *error) {
	if syncErr := f.Sync(); syncErr != nil {
		om.log.Errorf("Error syncing '%s': %v", path, syncErr)
	}
	if closeErr := f.Close(); closeErr != nil && *err == nil {
		*err = fmt.Errorf("closing '%s': %w", path, closeErr)
	}
}

// WriteDocuments writes one JSON object per document, in schedule order
func (om *OutputManager) WriteDocuments(docs []*models.Document) (err error) {
	f, path, err := om.create(DocumentsFile)
	if err != nil {
		return err
	}
	defer om.closeFile(f, path, &err)

	enc := json.NewEncoder(f)
	for _, d := range docs {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("writing document %s to '%s': %w", d.URL, path, err)
		}
	}
	om.log.Infof("Wrote %d documents to %s", len(docs), path)
	return nil
}

// WriteChunks splits every document into indexer-ready chunks. It is a no-op unless
// write_chunks is enabled. Returns the number of chunks written.
func (om *OutputManager) WriteChunks(docs []*models.Document) (n int, err error) {
	if !om.cfg.WriteChunks {
		om.log.Debug("Chunk output is disabled")
		return 0, nil
	}
	f, path, err := om.create(ChunksFile)
	if err != nil {
		return 0, err
	}
	defer om.closeFile(f, path, &err)

	chunkCfg := process.ChunkerConfig{MaxChunkSize: om.cfg.ChunkMaxTokens, ChunkOverlap: om.cfg.ChunkOverlap}
	enc := json.NewEncoder(f)
	for _, d := range docs {
		chunks, chunkErr := process.ChunkDocument(d, chunkCfg, om.tokenizer)
		if chunkErr != nil {
			om.log.WithField("url", d.URL).Warnf("Failed to chunk document: %v", chunkErr)
			continue
		}
		for _, c := range chunks {
			if err := enc.Encode(c); err != nil {
				return n, fmt.Errorf("writing chunk to '%s': %w", path, err)
			}
			n++
		}
	}
	om.log.Infof("Wrote %d chunks to %s", n, path)
	return n, nil
}

// WriteAttempts writes the attempt log as TSV with a header row
func (om *OutputManager) WriteAttempts(attempts []models.AttemptRecord) (err error) {
	f, path, err := om.create(AttemptsFile)
	if err != nil {
		return err
	}
	defer om.closeFile(f, path, &err)

	w := csv.NewWriter(f)
	w.Comma = '\t'
	_ = w.Write([]string{"seq", "phase", "status", "http_code", "category", "depth", "elapsed_ms", "url", "error"})
	for _, a := range attempts {
		code := ""
		if a.HTTPCode != 0 {
			code = strconv.Itoa(a.HTTPCode)
		}
		_ = w.Write([]string{
			strconv.Itoa(a.Seq), string(a.Phase), string(a.Status), code, string(a.Category),
			strconv.Itoa(a.Depth), strconv.FormatInt(a.Elapsed.Milliseconds(), 10), a.URL, a.Error,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("writing attempts to '%s': %w", path, err)
	}
	return nil
}

// WriteFrontier writes the aggregated frontier as TSV in insertion order
func (om *OutputManager) WriteFrontier(cands []models.CandidateURL) (err error) {
	f, path, err := om.create(FrontierFile)
	if err != nil {
		return err
	}
	defer om.closeFile(f, path, &err)
	return WriteFrontierTSV(f, cands)
}

// WriteFrontierTSV renders candidates as TSV with a header row
func WriteFrontierTSV(w io.Writer, cands []models.CandidateURL) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	_ = cw.Write([]string{"url", "source", "priority", "category", "depth"})
	for _, c := range cands {
		_ = cw.Write([]string{
			c.NormalizedURL, string(c.Source), strconv.FormatFloat(c.Priority, 'f', 2, 64),
			string(c.Category), strconv.Itoa(c.Depth),
		})
	}
	cw.Flush()
	return cw.Error()
}

// WriteSummary writes the run summary as YAML
func (om *OutputManager) WriteSummary(s *models.RunSummary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshalling run summary: %w", err)
	}
	if err := os.MkdirAll(om.runDir, 0755); err != nil {
		return fmt.Errorf("creating run directory '%s': %w", om.runDir, err)
	}
	path := filepath.Join(om.runDir, SummaryFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing run summary '%s': %w", path, err)
	}
	om.log.Infof("Wrote run summary to %s", path)
	return nil
}

// LoadSummary reads a summary.yaml written by WriteSummary
func LoadSummary(path string) (*models.RunSummary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run summary '%s': %w", path, err)
	}
	var s models.RunSummary
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: run summary '%s': %w", utils.ErrParsing, path, err)
	}
	return &s, nil
}

// LatestSummary finds the most recently finished run summary under a site directory
func LatestSummary(siteDir string) (*models.RunSummary, string, error) {
	entries, err := os.ReadDir(siteDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("no runs recorded under '%s'", siteDir)
		}
		return nil, "", err
	}

	type found struct {
		summary *models.RunSummary
		path    string
	}
	var runs []found
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(siteDir, e.Name(), SummaryFile)
		s, err := LoadSummary(path)
		if err != nil {
			continue
		}
		runs = append(runs, found{s, path})
	}
	if len(runs) == 0 {
		return nil, "", fmt.Errorf("no run summaries under '%s'", siteDir)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].summary.FinishedAt.After(runs[j].summary.FinishedAt) })
	return runs[0].summary, runs[0].path, nil
}
