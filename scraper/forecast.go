package scraper

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aluiziolira/ri-harvester/parser"
	"github.com/aluiziolira/ri-harvester/store"
)

// Forecast estimates when an author harvest will finish from the pace of
// the current run.
type Forecast struct {
	Processed  int
	Total      int
	Offset     int
	PageSize   int
	Elapsed    time.Duration
	RunItems   int
	Now        time.Time
	ZoneOffset int
}

// Pages returns the completed and total page counts.
func (f Forecast) Pages() (int, int) {
	if f.PageSize <= 0 {
		return 0, 0
	}
	return f.Offset / f.PageSize, parser.PageCount(f.Total, f.PageSize)
}

// Percent returns listing progress by pages.
func (f Forecast) Percent() float64 {
	done, total := f.Pages()
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// PerItem returns the average time per author stored in this run.
func (f Forecast) PerItem() time.Duration {
	if f.RunItems <= 0 {
		return 0
	}
	return f.Elapsed / time.Duration(f.RunItems)
}

// Remaining returns the estimated time left.
func (f Forecast) Remaining() time.Duration {
	left := f.Total - f.Processed
	if left < 0 {
		left = 0
	}
	return f.PerItem() * time.Duration(left)
}

// WriteTo renders the forecast report.
func (f Forecast) WriteTo(w io.Writer) (int64, error) {
	done, pages := f.Pages()
	eta := f.Now.UTC().Add(f.Remaining())
	zone := time.FixedZone(fmt.Sprintf("UTC%+d", f.ZoneOffset), f.ZoneOffset*3600)
	rule := strings.Repeat("=", 60)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\nHARVEST FORECAST - AUTHORS\n%s\n\n", rule, rule)
	b.WriteString("PROGRESS:\n")
	fmt.Fprintf(&b, "  Authors processed: %d / %d\n", f.Processed, f.Total)
	fmt.Fprintf(&b, "  Percent: %.2f%%\n", f.Percent())
	fmt.Fprintf(&b, "  Pages: %d / %d\n\n", done, pages)
	b.WriteString("TIME:\n")
	fmt.Fprintf(&b, "  Elapsed: %.2fh\n", f.Elapsed.Hours())
	fmt.Fprintf(&b, "  Remaining: %.2fh\n", f.Remaining().Hours())
	fmt.Fprintf(&b, "  Estimated total: %.2fh\n", (f.Elapsed + f.Remaining()).Hours())
	fmt.Fprintf(&b, "  Average: %.2fs per author\n\n", f.PerItem().Seconds())
	b.WriteString("EXPECTED COMPLETION:\n")
	fmt.Fprintf(&b, "  %s: %s\n", zone.String(), eta.In(zone).Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "  UTC: %s\n", eta.Format("2006-01-02 15:04:05"))

	n, err := io.WriteString(w, b.String())
	return int64(n), err
}

// writeForecast replaces the forecast file. Nothing is written before the
// first author of the run is stored.
func writeForecast(path string, f Forecast) error {
	if f.RunItems <= 0 {
		return nil
	}
	return store.WriteFile(path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
}
