package reporting

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/cdanielmachado/smetana/api/schemas"
)

// JSONReporter writes the whole result set as a single <prefix>results.json
// document, for pipelines that prefer structure over tables. Missing scores
// serialize as null.
type JSONReporter struct {
	prefix string
	log    *zap.Logger
}

// NewJSON builds a reporter writing one JSON document under the given path
// prefix.
func NewJSON(prefix string, log *zap.Logger) *JSONReporter {
	return &JSONReporter{prefix: prefix, log: log}
}

func (r *JSONReporter) Write(rs *schemas.ResultSet) error {
	path := r.prefix + "results.json"
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	r.log.Info("wrote results",
		zap.String("path", path),
		zap.Int("global_rows", len(rs.Global)),
		zap.Int("detailed_rows", len(rs.Detailed)))
	return nil
}
