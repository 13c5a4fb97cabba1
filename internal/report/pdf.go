// Package report renders administrator PDF exports. Builders are pure:
// they consume already-fetched metadata, feedback and transcript data and
// return the document bytes.
package report

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/signintech/gopdf"

	"osteo-training-backend/internal/feedback"
	"osteo-training-backend/internal/transcript"
)

// MetaItem keeps header fields in declaration order.
type MetaItem struct {
	Label string
	Value string
}

// SummaryRow is one line of the 16-session summary table.
type SummaryRow struct {
	SessionNumber   int
	EndedAt         string
	Difficulty      string
	InternalScores  map[string]int
	SkillIndicators map[string]bool
}

// DejaVuSans covers the accented characters in French feedback text.
var fontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const fontName = "DejaVu"

func newDocument() (*gopdf.GoPdf, error) {
	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	var fontErr error
	for _, path := range fontPaths {
		if err := pdf.AddTTFFont(fontName, path); err == nil {
			return pdf, nil
		} else {
			fontErr = err
		}
	}
	return nil, fmt.Errorf("failed to load PDF font, install ttf-dejavu: %w", fontErr)
}

// BuildSessionPDF renders a single-session report: metadata header, the
// student-facing feedback, then the full transcript.
func BuildSessionPDF(title string, meta []MetaItem, sf feedback.StudentFacing, messages []*transcript.Message) ([]byte, error) {
	pdf, err := newDocument()
	if err != nil {
		return nil, err
	}

	w := &writer{pdf: pdf}
	w.heading(title, 16)
	for _, m := range meta {
		w.line(fmt.Sprintf("%s: %s", m.Label, m.Value), 10)
	}
	w.space(10)

	w.heading("Feedback (student-facing)", 12)
	w.line("Strengths:", 10)
	for _, s := range sf.Strengths {
		w.line("  - "+s, 10)
	}
	w.line("Areas to improve:", 10)
	for _, s := range sf.AreasToImprove {
		w.line("  - "+s, 10)
	}
	if sf.ReflectiveQuestion != "" {
		w.line("Reflective question:", 10)
		w.line("  "+sf.ReflectiveQuestion, 10)
	}
	w.space(10)

	w.heading("Transcript", 12)
	for _, m := range messages {
		w.line(fmt.Sprintf("[%s] %s", m.Role, m.Content), 9)
	}
	if w.err != nil {
		return nil, w.err
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

// BuildSummaryPDF renders the per-student overview of all 16 sessions with
// their scores and skill indicators.
func BuildSummaryPDF(title string, meta []MetaItem, rows []SummaryRow) ([]byte, error) {
	pdf, err := newDocument()
	if err != nil {
		return nil, err
	}

	w := &writer{pdf: pdf}
	w.heading(title, 16)
	for _, m := range meta {
		w.line(fmt.Sprintf("%s: %s", m.Label, m.Value), 10)
	}
	w.space(10)

	for _, row := range rows {
		w.heading(fmt.Sprintf("Session %d", row.SessionNumber), 11)
		ended := row.EndedAt
		if ended == "" {
			ended = "not completed"
		}
		w.line("Ended: "+ended, 9)
		w.line("Scores: "+renderScores(row.InternalScores), 9)
		w.line("Indicators: "+renderIndicators(row.SkillIndicators), 9)
		w.space(4)
	}
	if w.err != nil {
		return nil, w.err
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func renderScores(scores map[string]int) string {
	if len(scores) == 0 {
		return "no feedback"
	}
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "%s=%d", k, scores[k])
	}
	return b.String()
}

func renderIndicators(indicators map[string]bool) string {
	if len(indicators) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(indicators))
	for k := range indicators {
		if indicators[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "none"
	}
	sort.Strings(keys)
	var b bytes.Buffer
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(k)
	}
	return b.String()
}

// writer tracks the cursor and paginates long content.
type writer struct {
	pdf *gopdf.GoPdf
	err error
}

const (
	pageBottom = 800.0
	lineWidth  = 500.0
)

func (w *writer) heading(text string, size float64) {
	w.write(text, size)
	w.pdf.Br(6)
}

func (w *writer) line(text string, size float64) {
	w.write(text, size)
}

func (w *writer) space(h float64) {
	w.pdf.Br(h)
}

func (w *writer) write(text string, size float64) {
	if w.err != nil {
		return
	}
	if err := w.pdf.SetFont(fontName, "", size); err != nil {
		w.err = err
		return
	}
	chunks, _ := w.pdf.SplitText(text, lineWidth)
	for _, chunk := range chunks {
		if w.pdf.GetY() > pageBottom {
			w.pdf.AddPage()
			if err := w.pdf.SetFont(fontName, "", size); err != nil {
				w.err = err
				return
			}
		}
		w.pdf.Cell(nil, chunk)
		w.pdf.Br(size + 4)
	}
}
