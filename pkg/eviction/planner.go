// Package eviction picks the datasets to move from the main tier to the
// archive tier.
package eviction

import (
	"github.com/dustin/go-humanize"
	"github.com/materials-commons/tierstore/pkg/clog"
	"github.com/materials-commons/tierstore/pkg/treescan"
	"github.com/pkg/errors"
)

// Watermarks bound the main tier usage in bytes. Eviction starts when usage
// reaches High and stops once usage would drop to Low.
type Watermarks struct {
	Low  int64
	High int64
}

func (w Watermarks) Validate() error {
	if w.Low < 0 || w.High < 0 {
		return errors.Errorf("watermarks must not be negative (low %d, high %d)", w.Low, w.High)
	}

	if w.Low > w.High {
		return errors.Errorf("low watermark %s is above high watermark %s",
			humanize.IBytes(uint64(w.Low)), humanize.IBytes(uint64(w.High)))
	}

	return nil
}

// Plan returns the datasets to evict. records must be ordered least recently
// modified first, the way treescan returns them. When totalSize is below the
// high watermark nothing is returned. Otherwise records are taken in order
// until their sizes add up to totalSize-Low. If they never do, all of them
// are returned.
func Plan(totalSize int64, w Watermarks, records []treescan.Record) []treescan.Record {
	if totalSize < w.High {
		return nil
	}

	deficit := totalSize - w.Low
	var (
		selected []treescan.Record
		freed    int64
	)

	for _, r := range records {
		if freed >= deficit {
			break
		}
		selected = append(selected, r)
		freed += r.Size
	}

	clog.UsingCtx(clog.SweepCtx).Infof("Usage %s at or above high watermark %s, %d datasets (%s) selected to free %s",
		humanize.IBytes(uint64(totalSize)), humanize.IBytes(uint64(w.High)),
		len(selected), humanize.IBytes(uint64(freed)), humanize.IBytes(uint64(deficit)))

	return selected
}
