package interfaces

// PDFService handles PDF generation from markdown documents
type PDFService interface {
	// ConvertMarkdownToPDF converts markdown content to a PDF byte slice
	ConvertMarkdownToPDF(markdown, title string) ([]byte, error)
}
