package report

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/khanhnv2901/webaudit-cli/internal/audit"
	sharedErrors "github.com/khanhnv2901/webaudit-cli/internal/shared/errors"
	"github.com/khanhnv2901/webaudit-cli/internal/shared/security"
)

//go:embed templates/report.html
var reportHTMLTemplate string

const (
	jsonFileName = "report.json"
	htmlFileName = "report.html"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Writer persists finished runs under <root>/<run-id>/ with a machine-readable
// report.json and a human-readable report.html. Writes are all-or-nothing: a
// failure mid-write removes the partially written directory.
type Writer struct {
	root   string
	logger *zap.SugaredLogger
	tmpl   *template.Template
}

// NewWriter builds a writer rooted at dir, parsing the embedded HTML template
// once up front.
func NewWriter(root string, logger *zap.SugaredLogger) (*Writer, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: reports directory is required", sharedErrors.ErrReportWrite)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"upper": strings.ToUpper,
	}).Parse(reportHTMLTemplate)
	if err != nil {
		return nil, fmt.Errorf("%w: parse template: %v", sharedErrors.ErrReportWrite, err)
	}
	return &Writer{root: root, logger: logger, tmpl: tmpl}, nil
}

// Root returns the reports root directory.
func (w *Writer) Root() string { return w.root }

// Write persists the run and returns the report directory. The run must be
// frozen; failed runs are never written.
func (w *Writer) Write(run *audit.Run) (string, error) {
	if !run.Frozen() {
		return "", sharedErrors.ErrRunNotFinalized
	}
	if run.Status() == audit.RunStatusFailed {
		return "", fmt.Errorf("%w: refusing to persist a failed run", sharedErrors.ErrReportWrite)
	}

	dir, err := security.ResolveWithin(w.root, run.ID())
	if err != nil {
		return "", fmt.Errorf("%w: %v", sharedErrors.ErrReportWrite, err)
	}
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("%w: create %s: %v", sharedErrors.ErrReportWrite, dir, err)
	}

	doc := FromRun(run)
	if err := w.writeFiles(dir, doc); err != nil {
		// No partial reports: take the directory down with the failure.
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			w.logger.Warnw("failed to clean up partial report", "dir", dir, "error", rmErr)
		}
		return "", err
	}

	w.logger.Infow("report written", "run", run.ID(), "dir", dir)
	return dir, nil
}

func (w *Writer) writeFiles(dir string, doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode json: %v", sharedErrors.ErrReportWrite, err)
	}
	if err := os.WriteFile(filepath.Join(dir, jsonFileName), data, filePerm); err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrReportWrite, err)
	}

	htmlFile, err := os.OpenFile(filepath.Join(dir, htmlFileName), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrReportWrite, err)
	}
	defer htmlFile.Close()

	if err := w.tmpl.Execute(htmlFile, doc); err != nil {
		return fmt.Errorf("%w: render html: %v", sharedErrors.ErrReportWrite, err)
	}
	return nil
}

// RenderHTML writes the human-readable report for an already-loaded document,
// used by the export subcommand.
func (w *Writer) RenderHTML(doc *Document, path string) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return fmt.Errorf("%w: %v", sharedErrors.ErrReportWrite, err)
	}
	defer out.Close()

	if err := w.tmpl.Execute(out, doc); err != nil {
		return fmt.Errorf("%w: render html: %v", sharedErrors.ErrReportWrite, err)
	}
	return nil
}

// List returns the identifiers of persisted reports, newest first. Run
// identifiers are timestamps, so lexical order is chronological.
func (w *Writer) List() ([]string, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read reports directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(w.root, entry.Name(), jsonFileName)); err != nil {
			continue
		}
		ids = append(ids, entry.Name())
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Load reads a persisted report by run identifier.
func (w *Writer) Load(id string) (*Document, error) {
	dir, err := security.ResolveWithin(w.root, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", sharedErrors.ErrReportNotFound, id)
	}

	data, err := os.ReadFile(filepath.Join(dir, jsonFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", sharedErrors.ErrReportNotFound, id)
		}
		return nil, fmt.Errorf("read report %s: %w", id, err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", id, err)
	}
	return &doc, nil
}
