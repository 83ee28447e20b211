// Package pdfgen renders admin-authored text into PDF documents and checks
// uploaded PDF bytes.
package pdfgen

import (
	"bytes"
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-pdf/fpdf"
)

const (
	LibraryName     = "Intizar Digital Library"
	maxFileStemRune = 50

	fontFamily = "DejaVu"
)

// DejaVu Sans covers Latin, Arabic and Persian, so titles and bodies keep
// every rune.
var (
	//go:embed fonts/DejaVuSansCondensed.ttf
	regularFont []byte
	//go:embed fonts/DejaVuSansCondensed-Bold.ttf
	boldFont []byte
)

// Content is what the admin submits on the generate form.
type Content struct {
	Title     string
	Author    string
	Body      string
	Generated time.Time
}

// Render lays the content out on A4 pages: a title block, the body as
// justified paragraphs and a footer on every page.
func Render(c Content) ([]byte, error) {
	pdf := layout(c)
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func layout(c Content) *fpdf.Fpdf {
	if c.Generated.IsZero() {
		c.Generated = time.Now()
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	w := &writer{Fpdf: pdf}
	pdf.AddUTF8FontFromBytes(fontFamily, "", regularFont)
	pdf.AddUTF8FontFromBytes(fontFamily, "B", boldFont)
	pdf.SetTitle(c.Title, true)
	pdf.SetAuthor(c.Author, true)
	pdf.SetCreator(LibraryName, true)
	pdf.SetCreationDate(c.Generated)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetFooterFunc(func() {
		// a page break can land inside a right-to-left paragraph
		pdf.LTR()
		defer w.restore()
		pdf.SetY(-18)
		pdf.SetFont(fontFamily, "", 10)
		pdf.SetTextColor(102, 102, 102)
		pdf.CellFormat(0, 8, fmt.Sprintf("Generated by %s | %d", LibraryName, c.Generated.Year()), "T", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 20)
	pdf.SetTextColor(0, 0, 0)
	w.direction(c.Title)
	pdf.MultiCell(0, 9, c.Title, "", "C", false)
	pdf.Ln(3)

	pdf.SetFont(fontFamily, "", 11)
	pdf.SetTextColor(102, 102, 102)
	author := c.Author
	if !w.direction(author) {
		author = "Author: " + author
	}
	pdf.CellFormat(0, 6, author, "", 1, "C", false, 0, "")
	w.direction("")
	pdf.CellFormat(0, 6, "Generated: "+c.Generated.Format("January 2, 2006"), "", 1, "C", false, 0, "")

	left, _, right, _ := pdf.GetMargins()
	width, _ := pdf.GetPageSize()
	pdf.Ln(4)
	pdf.SetDrawColor(51, 51, 51)
	y := pdf.GetY()
	pdf.Line(left, y, width-right, y)
	pdf.Ln(10)

	pdf.SetFont(fontFamily, "", 12)
	pdf.SetTextColor(0, 0, 0)
	body := strings.ReplaceAll(c.Body, "\r", "")
	for _, para := range strings.Split(body, "\n") {
		if strings.TrimSpace(para) == "" {
			pdf.Ln(6)
			continue
		}
		align := "J"
		if w.direction(para) {
			align = "R"
		}
		pdf.MultiCell(0, 6, para, "", align, false)
	}
	w.direction("")
	return pdf
}

// writer remembers the text direction so the footer can put it back.
type writer struct {
	*fpdf.Fpdf
	rtl bool
}

// direction switches to right-to-left when the first letter of s is Arabic
// or Hebrew, and reports whether it did.
func (w *writer) direction(s string) bool {
	w.rtl = false
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		w.rtl = unicode.In(r, unicode.Arabic, unicode.Hebrew)
		break
	}
	w.restore()
	return w.rtl
}

func (w *writer) restore() {
	if w.rtl {
		w.RTL()
		return
	}
	w.LTR()
}

var unsafeStem = regexp.MustCompile(`[^A-Za-z0-9_\s-]`)

// FileName builds "<title>_<unix millis>.pdf" keeping only word characters,
// spaces and dashes from the title.
func FileName(title string, now time.Time) string {
	stem := unsafeStem.ReplaceAllString(title, "")
	if r := []rune(stem); len(r) > maxFileStemRune {
		stem = string(r[:maxFileStemRune])
	}
	stem = strings.TrimSpace(stem)
	if stem == "" {
		stem = "document"
	}
	return fmt.Sprintf("%s_%d.pdf", stem, now.UnixMilli())
}
