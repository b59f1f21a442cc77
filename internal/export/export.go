package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/yok-tottii/meetscribe/internal/logger"
)

const (
	fileTimeLayout   = "20060102_150405"
	headerTimeLayout = "2006-01-02 15:04:05"

	// maxLineRunes is the widest body line that fits an A4 page at 11pt
	maxLineRunes = 85
	// pageBreakY is the vertical position, in mm, past which a new page starts
	pageBreakY = 270
)

// Paths holds the artifacts written for one transcript
type Paths struct {
	Text string
	PDF  string
}

// Exporter writes transcript reports under {dir}/text and {dir}/pdf
type Exporter struct {
	dir string
	now func() time.Time
	log logger.Interface
}

// Option configures an Exporter
type Option func(*Exporter)

// WithClock overrides the time used in file names and headers
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

// WithLogger sets the exporter logger
func WithLogger(log logger.Interface) Option {
	return func(e *Exporter) { e.log = log }
}

// New creates an exporter rooted at the transcripts directory
func New(dir string, opts ...Option) *Exporter {
	e := &Exporter{dir: dir, now: time.Now, log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Header returns the text header prepended to every transcript file
func Header(session string, t time.Time) string {
	return fmt.Sprintf("Meeting Transcript\nGenerated: %s\nSession: %s\n%s\n\n",
		t.Format(headerTimeLayout), session, strings.Repeat("=", 60))
}

func (e *Exporter) path(kind, ext, session string, t time.Time) (string, error) {
	dir := filepath.Join(e.dir, kind)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s directory: %w", kind, err)
	}
	name := fmt.Sprintf("transcript_%s_%s.%s", t.Format(fileTimeLayout), session, ext)
	return filepath.Join(dir, name), nil
}

// Text writes {dir}/text/transcript_{YYYYMMDD_HHMMSS}_{session}.txt
func (e *Exporter) Text(report, session string) (string, error) {
	return e.text(report, session, e.now())
}

func (e *Exporter) text(report, session string, t time.Time) (string, error) {
	path, err := e.path("text", "txt", session, t)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(Header(session, t)+report), 0644); err != nil {
		return "", fmt.Errorf("failed to write text transcript: %w", err)
	}

	e.log.Info("Text transcript saved: %s", path)
	return path, nil
}

// PDF writes {dir}/pdf/transcript_{YYYYMMDD_HHMMSS}_{session}.pdf
func (e *Exporter) PDF(report, session string) (string, error) {
	return e.pdf(report, session, e.now())
}

func (e *Exporter) pdf(report, session string, t time.Time) (string, error) {
	path, err := e.path("pdf", "pdf", session, t)
	if err != nil {
		return "", err
	}

	doc := render(report, session, t)
	if err := doc.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("failed to write PDF transcript: %w", err)
	}

	e.log.Info("PDF transcript saved: %s", path)
	return path, nil
}

// All writes both artifacts with one shared timestamp. A failed artifact
// leaves its path empty; the first error is returned.
func (e *Exporter) All(report, session string) (Paths, error) {
	t := e.now()

	var paths Paths
	var firstErr error

	textPath, err := e.text(report, session, t)
	if err != nil {
		e.log.Error("%v", err)
		firstErr = err
	}
	paths.Text = textPath

	pdfPath, err := e.pdf(report, session, t)
	if err != nil {
		e.log.Error("%v", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	paths.PDF = pdfPath

	return paths, firstErr
}

func render(report, session string, t time.Time) *fpdf.Fpdf {
	doc := fpdf.New("P", "mm", "A4", "")
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()

	doc.SetFont("Arial", "B", 16)
	doc.CellFormat(0, 10, "Meeting Transcript", "", 1, "C", false, 0, "")
	doc.Ln(3)

	doc.SetFont("Arial", "", 10)
	doc.CellFormat(0, 8, "Generated: "+t.Format(headerTimeLayout), "", 1, "", false, 0, "")
	doc.CellFormat(0, 8, tr("Session: "+latin1(session)), "", 1, "", false, 0, "")
	doc.Ln(8)

	doc.SetFont("Arial", "", 11)
	for _, line := range strings.Split(report, "\n") {
		if doc.GetY() > pageBreakY {
			doc.AddPage()
		}
		doc.CellFormat(0, 6, tr(truncate(latin1(line), maxLineRunes)), "", 1, "", false, 0, "")
	}

	return doc
}

// latin1 replaces characters the core PDF fonts cannot encode with '?'
func latin1(s string) string {
	return strings.Map(func(r rune) rune {
		if r > 0xFF {
			return '?'
		}
		return r
	}, s)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
