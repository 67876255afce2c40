package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/yungbote/qalam-backend/internal/platform/envutil"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
)

const PageBreak = "<!-- --- Page Break --- -->"

type DocumentConfig struct {
	ProjectID   string
	Location    string
	ProcessorID string
}

func DocumentConfigFromEnv() DocumentConfig {
	return DocumentConfig{
		ProjectID:   envutil.String("DOCUMENTAI_PROJECT_ID", ""),
		Location:    envutil.String("DOCUMENTAI_LOCATION", "us"),
		ProcessorID: envutil.String("DOCUMENTAI_PROCESSOR_ID", ""),
	}
}

func (c DocumentConfig) Enabled() bool {
	return c.ProjectID != "" && c.ProcessorID != ""
}

// Document converts PDFs to Markdown with Document AI's layout parser output.
type Document struct {
	log        *logger.Logger
	client     *documentai.DocumentProcessorClient
	processor  string
	maxRetries int
}

func NewDocument(log *logger.Logger, cfg DocumentConfig) (*Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !cfg.Enabled() {
		return nil, fmt.Errorf("documentai: DOCUMENTAI_PROJECT_ID and DOCUMENTAI_PROCESSOR_ID required")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)
	opts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	slog := log.With("service", "gcp.Document")
	slog.Info("Document AI initialized", "endpoint", endpoint)
	return &Document{
		log:        slog,
		client:     c,
		processor:  fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.ProjectID, cfg.Location, cfg.ProcessorID),
		maxRetries: 3,
	}, nil
}

func (d *Document) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *Document) Convert(ctx context.Context, pdf []byte) (string, error) {
	if len(pdf) == 0 {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()
	req := &documentaipb.ProcessRequest{
		Name: d.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{Content: pdf, MimeType: "application/pdf"},
		},
	}
	resp, err := retry(ctx, d.maxRetries, func() (*documentaipb.ProcessResponse, error) {
		return d.client.ProcessDocument(ctx, req)
	})
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	return DocumentMarkdown(resp.GetDocument()), nil
}

// DocumentMarkdown renders tables first and then the paragraphs not covered by a table,
// page by page.
func DocumentMarkdown(doc *documentaipb.Document) string {
	if doc == nil {
		return ""
	}
	pages := make([]string, 0, len(doc.Pages))
	for _, p := range doc.Pages {
		if p == nil {
			continue
		}
		var blocks []string
		covered := make([][2]int64, 0)
		for _, t := range p.Tables {
			if md := tableToMarkdown(doc.Text, t); md != "" {
				blocks = append(blocks, md)
				covered = append(covered, tableSpans(t)...)
			}
		}
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil || para.Layout.TextAnchor == nil {
				continue
			}
			if anchorCovered(para.Layout.TextAnchor, covered) {
				continue
			}
			if txt := strings.TrimSpace(textFromAnchor(doc.Text, para.Layout.TextAnchor)); txt != "" {
				blocks = append(blocks, txt)
			}
		}
		pages = append(pages, strings.Join(blocks, "\n\n"))
	}
	if len(pages) == 0 {
		return strings.TrimSpace(doc.Text)
	}
	return strings.Join(pages, "\n\n"+PageBreak+"\n\n")
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start, end := int(seg.StartIndex), int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start < end {
			b.WriteString(full[start:end])
		}
	}
	return b.String()
}

func tableSpans(t *documentaipb.Document_Page_Table) [][2]int64 {
	var out [][2]int64
	if t == nil || t.Layout == nil || t.Layout.TextAnchor == nil {
		return out
	}
	for _, seg := range t.Layout.TextAnchor.TextSegments {
		if seg != nil {
			out = append(out, [2]int64{seg.StartIndex, seg.EndIndex})
		}
	}
	return out
}

func anchorCovered(anchor *documentaipb.Document_TextAnchor, spans [][2]int64) bool {
	if len(spans) == 0 || len(anchor.TextSegments) == 0 {
		return false
	}
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		inside := false
		for _, sp := range spans {
			if seg.StartIndex >= sp[0] && seg.EndIndex <= sp[1] {
				inside = true
				break
			}
		}
		if !inside {
			return false
		}
	}
	return true
}

// tableToMarkdown emits a pipe table; the separator goes after the header row, or after the
// first body row when Document AI found no header.
func tableToMarkdown(full string, t *documentaipb.Document_Page_Table) string {
	if t == nil {
		return ""
	}
	var rows [][]string
	for _, r := range t.HeaderRows {
		rows = append(rows, tableRowToCells(full, r))
	}
	for _, r := range t.BodyRows {
		rows = append(rows, tableRowToCells(full, r))
	}
	return RenderTable(rows)
}

func tableRowToCells(full string, r *documentaipb.Document_Page_Table_TableRow) []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Cells))
	for _, c := range r.Cells {
		if c == nil || c.Layout == nil {
			out = append(out, "")
			continue
		}
		out = append(out, collapseWhitespace(textFromAnchor(full, c.Layout.TextAnchor)))
	}
	return out
}

// RenderTable renders rows as a Markdown pipe table. Rows are padded to the widest row, pipes
// in cells are backslash-escaped, and the separator follows the first row.
func RenderTable(rows [][]string) string {
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if len(rows) == 0 || cols == 0 {
		return ""
	}
	var b strings.Builder
	writeRow := func(r []string) {
		cells := make([]string, cols)
		for i := 0; i < cols; i++ {
			if i < len(r) {
				cells[i] = strings.ReplaceAll(r[i], "|", "\\|")
			}
		}
		b.WriteString("| ")
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString(" |\n")
	}
	writeRow(rows[0])
	sep := make([]string, cols)
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("| ")
	b.WriteString(strings.Join(sep, " | "))
	b.WriteString(" |\n")
	for _, r := range rows[1:] {
		writeRow(r)
	}
	return strings.TrimRight(b.String(), "\n")
}
