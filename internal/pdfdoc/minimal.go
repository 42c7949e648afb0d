package pdfdoc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/charmap"
)

const (
	pageWidth    = 612
	pageHeight   = 792
	marginLeft   = 50
	titleY       = 780
	titleSize    = 16
	bodySize     = 12
	titleGap     = 26
	lineGap      = 16
	bottomMargin = 36

	// LinesPerPage is how many body lines fit under the title.
	LinesPerPage = (titleY-titleGap-bottomMargin)/lineGap + 1
)

// Page is one text-only page: a title line followed by body lines.
type Page struct {
	Title string
	Lines []string
}

// WriteText writes title and lines, continuing onto further pages that
// repeat the title when the lines do not fit on one.
func WriteText(w io.Writer, title string, lines []string) error {
	return Write(w, Paginate(title, lines))
}

// Paginate splits lines into pages of at most LinesPerPage body lines. The
// result always holds at least one page.
func Paginate(title string, lines []string) []Page {
	if len(lines) <= LinesPerPage {
		return []Page{{Title: title, Lines: lines}}
	}
	total := (len(lines) + LinesPerPage - 1) / LinesPerPage
	pages := make([]Page, 0, total)
	for i := 0; i < total; i++ {
		end := (i + 1) * LinesPerPage
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, Page{
			Title: fmt.Sprintf("%s (%d/%d)", title, i+1, total),
			Lines: lines[i*LinesPerPage : end],
		})
	}
	return pages
}

// Write authors a PDF 1.4 file by hand: catalog, page tree, one page and
// content stream per Page, one Helvetica font, then the xref table.
func Write(w io.Writer, pages []Page) error {
	if len(pages) == 0 {
		return fmt.Errorf("pdf needs at least one page")
	}
	for i, p := range pages {
		if len(p.Lines) > LinesPerPage {
			return fmt.Errorf("page %d has %d lines, at most %d fit", i+1, len(p.Lines), LinesPerPage)
		}
	}

	n := len(pages)
	fontObj := 3 + 2*n
	var buf bytes.Buffer
	offsets := make([]int, 0, fontObj)

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	object := func(num int, body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	object(1, "<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, n)
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}
	object(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))

	for i, p := range pages {
		pageObj := 3 + 2*i
		object(pageObj, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Contents %d 0 R /Resources << /Font << /F1 %d 0 R >> >> >>",
			pageWidth, pageHeight, pageObj+1, fontObj,
		))
		content := pageContent(p)
		object(pageObj+1, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	object(fontObj, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", fontObj+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", fontObj+1, xref)

	_, err := w.Write(buf.Bytes())
	return err
}

func pageContent(p Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "BT /F1 %d Tf %d %d Td (%s) Tj ET", titleSize, marginLeft, titleY, escapeText(p.Title))
	y := titleY - titleGap
	for _, line := range p.Lines {
		fmt.Fprintf(&b, "\nBT /F1 %d Tf %d %d Td (%s) Tj ET", bodySize, marginLeft, y, escapeText(line))
		y -= lineGap
	}
	return b.String()
}

// escapeText encodes s as WinAnsi and escapes PDF string delimiters.
func escapeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteRune(r)
			continue
		case '\r', '\n', '\t':
			b.WriteByte(' ')
			continue
		}
		if r < 0x80 {
			b.WriteRune(r)
			continue
		}
		c, ok := charmap.Windows1252.EncodeRune(r)
		if !ok {
			c = '?'
		}
		b.WriteByte(c)
	}
	return b.String()
}
