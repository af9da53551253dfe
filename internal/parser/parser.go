package parser

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"campus-assistant/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"golang.org/x/net/html"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

const (
	defaultPageNumber = 1
	// below this many characters the PDF text layer is treated as unusable
	minPDFTextChars = 50
)

var (
	docxTextRe    = regexp.MustCompile(`(?s)<w:t(?:\s[^>]*)?>(.*?)</w:t>`)
	pptxTextRe    = regexp.MustCompile(`(?s)<a:t(?:\s[^>]*)?>(.*?)</a:t>`)
	slideNumberRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
)

// SupportedExtensions lists the file extensions ExtractPages understands
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".txt", ".md", ".html", ".htm"}

// ExtractPages reads filePath and returns its text split into pages. source is the
// name shown in page labels, usually the original upload filename.
func ExtractPages(filePath, source string) ([]models.Page, error) {
	if source == "" {
		source = filepath.Base(filePath)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	var texts []string
	var err error
	switch ext {
	case ".pdf":
		texts, err = parsePDF(filePath)
	case ".docx":
		texts, err = parseDOCX(filePath)
	case ".pptx":
		texts, err = parsePPTX(filePath)
	case ".xlsx", ".xlsm":
		texts, err = parseSpreadsheet(filePath)
	case ".txt":
		texts, err = parseText(filePath)
	case ".md":
		texts, err = parseMarkdown(filePath)
	case ".html", ".htm":
		texts, err = parseHTML(filePath)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	pages := make([]models.Page, 0, len(texts))
	for i, text := range texts {
		pages = append(pages, models.Page{Source: source, Number: i + 1, Text: text})
	}
	return pages, nil
}

func parsePDF(filePath string) ([]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Get file size for reader initialization
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	reader, err := pdf.NewReader(f, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	total := 0
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			log.Warn().Err(err).Int("page", i).Msg("plain text extraction failed")
			pageText = ""
		}
		total += len(strings.TrimSpace(pageText))
		pages = append(pages, pageText)
	}

	if total >= minPDFTextChars {
		return pages, nil
	}

	// Fall back to the positioned text runs of each page
	log.Debug().Str("file", filePath).Int("chars", total).Msg("pdf plain text too short, reading content runs")
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		var text strings.Builder
		for _, t := range page.Content().Text {
			text.WriteString(t.S)
		}
		if text.Len() > len(pages[i-1]) {
			pages[i-1] = text.String()
		}
	}
	return pages, nil
}

// DOCX has no page numbers, the whole document becomes page 1
func parseDOCX(filePath string) ([]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	var paragraphs []string
	for _, p := range strings.Split(content, "</w:p>") {
		text := strings.TrimSpace(extractTextFromXML(p, docxTextRe))
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	}
	return []string{strings.Join(paragraphs, "\n")}, nil
}

// Slides map to pages
func parsePPTX(filePath string) ([]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		number int
		text   string
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNumberRe.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		rc, err := file.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		slides = append(slides, slide{number: num, text: extractTextFromXML(string(data), pptxTextRe)})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].number < slides[j].number })

	pages := make([]string, len(slides))
	for i, s := range slides {
		pages[i] = s.text
	}
	return pages, nil
}

// Sheets map to pages. excelize is tried first, tealeg/xlsx reads workbooks it rejects.
func parseSpreadsheet(filePath string) ([]string, error) {
	pages, err := parseWithExcelize(filePath)
	if err == nil {
		return pages, nil
	}
	log.Debug().Err(err).Str("file", filePath).Msg("excelize failed, falling back to xlsx")
	return parseWithXLSX(filePath)
}

func parseWithExcelize(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var pages []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			continue
		}
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheetName))
		for _, row := range rows {
			text.WriteString(strings.Join(row, "\t"))
			text.WriteString("\n")
		}
		pages = append(pages, text.String())
	}
	return pages, nil
}

func parseWithXLSX(filePath string) ([]string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	var pages []string
	for _, sheet := range f.Sheets {
		var text strings.Builder
		text.WriteString(fmt.Sprintf("Sheet: %s\n", sheet.Name))
		for _, row := range sheet.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			text.WriteString(strings.Join(cells, "\t"))
			text.WriteString("\n")
		}
		pages = append(pages, text.String())
	}
	return pages, nil
}

func parseText(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []string{string(data)}, nil
}

func parseMarkdown(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	rendered, err := convertToHTML(data)
	if err != nil {
		return nil, err
	}
	text, err := htmlToText(rendered)
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

func parseHTML(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	text, err := htmlToText(string(data))
	if err != nil {
		return nil, err
	}
	return []string{text}, nil
}

func extractTextFromXML(xmlContent string, re *regexp.Regexp) string {
	var text strings.Builder
	for _, m := range re.FindAllStringSubmatch(xmlContent, -1) {
		text.WriteString(html.UnescapeString(m[1]))
		text.WriteString(" ")
	}
	return strings.TrimSpace(text.String())
}
