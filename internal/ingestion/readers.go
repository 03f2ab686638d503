package ingestion

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fumiama/go-docx"
	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/reqanswer/backend/internal/extraction"
	"github.com/reqanswer/backend/internal/qa"
)

// document is what a reader produces: a table, free text, or both. A table
// is tried first.
type document struct {
	table *extraction.Table
	text  string
}

type reader func(content []byte) (document, error)

var readers = map[string]reader{
	".xlsx": readXLSX,
	".csv":  readCSV,
	".docx": readDOCX,
	".pdf":  readPDF,
	".txt":  readTXT,
	".html": readHTML,
	".htm":  readHTML,
}

var (
	horizontalSpace = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines      = regexp.MustCompile(`\n\s*\n+`)
)

// Supported reports whether a file name has an extension the processor reads.
func Supported(name string) bool {
	_, ok := readers[strings.ToLower(filepath.Ext(name))]
	return ok
}

// SupportedExtensions lists the readable extensions.
func SupportedExtensions() []string {
	return []string{".xlsx", ".csv", ".docx", ".pdf", ".txt", ".html", ".htm"}
}

func readerFor(name string) (reader, error) {
	ext := strings.ToLower(filepath.Ext(name))
	r, ok := readers[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q", qa.ErrUnsupportedFormat, ext)
	}
	return r, nil
}

func readXLSX(content []byte) (document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return document{}, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return document{}, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return document{}, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return document{table: tableFromRows(rows)}, nil
}

func readCSV(content []byte) (document, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if semicolonSeparated(content) {
		r.Comma = ';'
	}

	rows, err := r.ReadAll()
	if err != nil {
		return document{}, fmt.Errorf("failed to parse csv: %w", err)
	}
	return document{table: tableFromRows(rows)}, nil
}

// semicolonSeparated detects the separator German spreadsheet exports use.
func semicolonSeparated(content []byte) bool {
	header, _, _ := bytes.Cut(content, []byte("\n"))
	return bytes.Count(header, []byte(";")) > bytes.Count(header, []byte(","))
}

// tableFromRows treats the first row as the header. Blank or repeated header
// cells get positional names so every column stays addressable.
func tableFromRows(rows [][]string) *extraction.Table {
	if len(rows) == 0 {
		return &extraction.Table{}
	}

	columns := make([]string, len(rows[0]))
	seen := make(map[string]bool, len(columns))
	for i, h := range rows[0] {
		name := strings.TrimSpace(h)
		if name == "" || seen[name] {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name] = true
		columns[i] = name
	}

	table := &extraction.Table{Columns: columns, Rows: make([]map[string]string, 0, len(rows)-1)}
	for _, raw := range rows[1:] {
		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(raw) {
				row[col] = raw[i]
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// readDOCX keeps the body paragraphs as text and the first table with a
// header row as tabular input.
func readDOCX(content []byte) (document, error) {
	doc, err := docx.Parse(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return document{}, fmt.Errorf("failed to open docx: %w", err)
	}
	if len(doc.Document.Body.Items) == 0 {
		return document{}, errors.New("docx has no document body")
	}

	var out document
	var lines []string
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			lines = append(lines, it.String())
		case *docx.Table:
			rows := docxTableRows(it)
			if out.table == nil && len(rows) > 1 {
				out.table = tableFromRows(rows)
			}
		}
	}
	out.text = strings.TrimSpace(strings.Join(lines, "\n"))
	return out, nil
}

// docxTableRows flattens each cell to the text of its paragraphs.
func docxTableRows(t *docx.Table) [][]string {
	rows := make([][]string, 0, len(t.TableRows))
	for _, tr := range t.TableRows {
		row := make([]string, 0, len(tr.TableCells))
		for _, tc := range tr.TableCells {
			parts := make([]string, 0, len(tc.Paragraphs))
			for _, p := range tc.Paragraphs {
				if text := strings.TrimSpace(p.String()); text != "" {
					parts = append(parts, text)
				}
			}
			row = append(row, strings.Join(parts, "\n"))
		}
		rows = append(rows, row)
	}
	return rows
}

func readPDF(content []byte) (document, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return document{}, fmt.Errorf("failed to open pdf: %w", err)
	}

	plain, err := r.GetPlainText()
	if err != nil {
		return document{}, fmt.Errorf("failed to extract pdf text: %w", err)
	}

	var b bytes.Buffer
	if _, err := b.ReadFrom(plain); err != nil {
		return document{}, fmt.Errorf("failed to read pdf text: %w", err)
	}
	return document{text: b.String()}, nil
}

func readTXT(content []byte) (document, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	return document{text: string(content)}, nil
}

// readHTML keeps the first table with a header row as tabular input and the
// visible body text as a fallback.
func readHTML(content []byte) (document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return document{}, fmt.Errorf("failed to parse html: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	var out document
	doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
		var rows [][]string
		t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, strings.TrimSpace(cell.Text()))
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		if len(rows) > 1 && len(rows[0]) > 1 {
			out.table = tableFromRows(rows)
			return false
		}
		return true
	})

	doc.Find("p, div, li, tr, h1, h2, h3, h4, h5, h6, br").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	text := horizontalSpace.ReplaceAllString(doc.Find("body").Text(), " ")
	text = blankLines.ReplaceAllString(text, "\n")
	out.text = strings.TrimSpace(text)
	return out, nil
}
