package textract

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	"partsuite/internal"
)

const (
	rowTolerance = 3.0
	spaceFactor  = 0.3
)

func (e *Extractor) embeddedText(ctx context.Context, path string) (pages []internal.PageText, err error) {
	// the reader panics on some malformed streams
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("read embedded text: %v", r)
		}
	}()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, err
	}

	n := r.NumPage()
	pages = make([]internal.PageText, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		pages = append(pages, internal.PageText{Index: i - 1, Text: pageRows(p.Content().Text)})
	}
	return pages, nil
}

type glyphRow struct {
	y      float64
	glyphs []pdf.Text
}

// pageRows rebuilds reading-order lines from positioned glyphs: top to bottom,
// then left to right, with a space wherever the horizontal gap is wide enough.
func pageRows(texts []pdf.Text) string {
	var rows []*glyphRow
	for _, t := range texts {
		if t.S == "" {
			continue
		}
		var row *glyphRow
		for _, r := range rows {
			if math.Abs(r.y-t.Y) <= rowTolerance {
				row = r
				break
			}
		}
		if row == nil {
			row = &glyphRow{y: t.Y}
			rows = append(rows, row)
		}
		row.glyphs = append(row.glyphs, t)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].y > rows[j].y })

	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		sort.SliceStable(row.glyphs, func(i, j int) bool { return row.glyphs[i].X < row.glyphs[j].X })
		var b strings.Builder
		prevEnd := 0.0
		spaced := false
		for i, g := range row.glyphs {
			if i > 0 && !spaced && g.S != " " && g.X-prevEnd > spaceFactor*g.FontSize {
				b.WriteByte(' ')
			}
			b.WriteString(g.S)
			spaced = strings.HasSuffix(g.S, " ")
			prevEnd = g.X + g.W
		}
		if line := strings.TrimRight(b.String(), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
