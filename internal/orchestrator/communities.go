package orchestrator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cdanielmachado/smetana/internal/model"
)

// communitySpec names one community and its member organisms, in file
// order.
type communitySpec struct {
	ID        string
	Organisms []string
}

// loadCommunities reads a two-column TSV of community id and organism id.
// An optional "community"/"organism" header row is skipped. With no file,
// every cached model joins a single community named "all".
func loadCommunities(path string, cache *model.Cache) ([]communitySpec, error) {
	if path == "" {
		return []communitySpec{{ID: "all", Organisms: cache.IDs()}}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load communities: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1

	var specs []communitySpec
	index := make(map[string]int)
	members := make(map[string]map[string]bool)
	for line := 1; ; line++ {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("load communities %s: line %d: %w", path, line, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("load communities %s: line %d: want community and organism columns", path, line)
		}
		comm := strings.TrimSpace(record[0])
		org := strings.TrimSpace(record[1])
		if comm == "" || org == "" {
			continue
		}
		if line == 1 && strings.EqualFold(comm, "community") && strings.EqualFold(org, "organism") {
			continue
		}
		i, ok := index[comm]
		if !ok {
			i = len(specs)
			index[comm] = i
			specs = append(specs, communitySpec{ID: comm})
			members[comm] = make(map[string]bool)
		}
		if members[comm][org] {
			return nil, fmt.Errorf("load communities %s: line %d: organism %q repeated in community %q", path, line, org, comm)
		}
		members[comm][org] = true
		specs[i].Organisms = append(specs[i].Organisms, org)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("load communities %s: no communities defined", path)
	}
	return specs, nil
}
