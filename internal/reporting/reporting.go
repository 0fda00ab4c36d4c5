// Package reporting writes score tables to disk. Output is tab-separated,
// one file per score family, so results load directly into spreadsheet and
// dataframe tooling.
package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"

	"github.com/cdanielmachado/smetana/api/schemas"
)

// Reporter persists a finished result set.
type Reporter interface {
	Write(rs *schemas.ResultSet) error
}

// New creates a reporter for the requested output format.
func New(format, prefix string, log *zap.Logger) (Reporter, error) {
	switch format {
	case "", "tsv":
		return NewTSV(prefix, log), nil
	case "json":
		return NewJSON(prefix, log), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// TSVReporter writes <prefix>global.tsv and <prefix>detailed.tsv, each only
// when its table has rows.
type TSVReporter struct {
	prefix string
	log    *zap.Logger
}

// NewTSV builds a reporter writing files under the given path prefix.
func NewTSV(prefix string, log *zap.Logger) *TSVReporter {
	return &TSVReporter{prefix: prefix, log: log}
}

func (r *TSVReporter) Write(rs *schemas.ResultSet) error {
	if len(rs.Global) > 0 {
		path := r.prefix + "global.tsv"
		if err := r.writeGlobal(path, rs.Global); err != nil {
			return err
		}
		r.log.Info("wrote global scores",
			zap.String("path", path),
			zap.Int("rows", len(rs.Global)))
	}
	if len(rs.Detailed) > 0 {
		path := r.prefix + "detailed.tsv"
		if err := r.writeDetailed(path, rs.Detailed); err != nil {
			return err
		}
		r.log.Info("wrote detailed scores",
			zap.String("path", path),
			zap.Int("rows", len(rs.Detailed)))
	}
	return nil
}

func (r *TSVReporter) writeGlobal(path string, records []schemas.GlobalRecord) error {
	return writeTable(path, []string{"community", "medium", "size", "mip", "mro", "smetana"},
		len(records), func(i int) []string {
			rec := records[i]
			return []string{
				rec.Community,
				rec.Medium,
				strconv.Itoa(rec.Size),
				rec.MIP.String(),
				rec.MRO.String(),
				rec.SMETANA.String(),
			}
		})
}

func (r *TSVReporter) writeDetailed(path string, records []schemas.DetailedRecord) error {
	return writeTable(path, []string{"community", "medium", "receiver", "donor", "compound", "scs", "mus", "mps", "smetana"},
		len(records), func(i int) []string {
			rec := records[i]
			return []string{
				rec.Community,
				rec.Medium,
				rec.Receiver,
				rec.Donor,
				rec.Compound,
				rec.SCS.String(),
				rec.MUS.String(),
				rec.MPS.String(),
				rec.SMETANA.String(),
			}
		})
}

func writeTable(path string, header []string, n int, row func(int) []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
