package pdf

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/ternarybob/portico/internal/interfaces"
)

// Service implements interfaces.PDFService
type Service struct {
	footer string
	now    func() time.Time
	logger arbor.ILogger
}

// Compile-time assertion
var _ interfaces.PDFService = (*Service)(nil)

// NewService creates a PDF service; footer is printed on every page next to the page number
func NewService(footer string, logger arbor.ILogger) *Service {
	return &Service{
		footer: footer,
		now:    time.Now,
		logger: logger,
	}
}

// ConvertMarkdownToPDF renders markdown to an A4 PDF. Every level-1 heading after the
// first starts a new page.
func (s *Service) ConvertMarkdownToPDF(markdown, title string) ([]byte, error) {
	s.logger.Debug().
		Int("markdown_len", len(markdown)).
		Str("title", title).
		Msg("Converting markdown to PDF")

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetMargins(15, 15, 15)
	doc.SetAutoPageBreak(true, 18)
	doc.SetCreationDate(s.now())

	// Core fonts are cp1252; accented Spanish text goes through the translator
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.SetTitle(title, true)
	doc.SetAuthor(s.footer, true)

	doc.SetFooterFunc(func() {
		doc.SetY(-12)
		doc.SetFont("Arial", "I", 7)
		doc.SetTextColor(100, 116, 139)
		doc.CellFormat(0, 5, tr(s.footer), "", 0, "L", false, 0, "")
		doc.SetX(15)
		doc.CellFormat(0, 5, fmt.Sprintf("%d", doc.PageNo()), "", 0, "R", false, 0, "")
		doc.SetTextColor(0, 0, 0)
	})
	doc.AddPage()
	doc.SetFont("Arial", "", 10)

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	source := []byte(markdown)
	root := md.Parser().Parse(text.NewReader(source))

	r := &renderer{pdf: doc, source: source, tr: tr, size: 10}
	if err := r.render(root); err != nil {
		s.logger.Error().Err(err).Msg("Failed to render PDF")
		return nil, fmt.Errorf("failed to render PDF: %w", err)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate PDF output")
		return nil, fmt.Errorf("failed to generate PDF output: %w", err)
	}

	s.logger.Debug().Int("pdf_size", buf.Len()).Int("pages", doc.PageCount()).Msg("PDF generated")
	return buf.Bytes(), nil
}

// PageCount reads the page count of a generated document
func PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("failed to read PDF: %w", err)
	}
	return n, nil
}
