package pdfdoc

import (
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

func pdfConfig() *model.Configuration {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func PageCount(rs io.ReadSeeker) (int, error) {
	return api.PageCount(rs, pdfConfig())
}

// ExtractPages copies the pages at the given 0-based indices, in the given
// order, into a new PDF written to w.
func ExtractPages(rs io.ReadSeeker, w io.Writer, indices []int) error {
	if len(indices) == 0 {
		return fmt.Errorf("no pages selected")
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return err
	}
	count, err := PageCount(rs)
	if err != nil {
		return err
	}
	selection := make([]string, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= count {
			return fmt.Errorf("page index %d out of range (document has %d pages)", idx, count)
		}
		selection = append(selection, strconv.Itoa(idx+1))
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return err
	}
	return api.Collect(rs, w, selection, pdfConfig())
}

// Merge concatenates whole documents in argument order.
func Merge(w io.Writer, parts ...io.ReadSeeker) error {
	if len(parts) == 0 {
		return fmt.Errorf("nothing to merge")
	}
	return api.MergeRaw(parts, w, false, pdfConfig())
}
