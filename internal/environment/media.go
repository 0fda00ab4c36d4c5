package environment

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MediaDB is a library of named media loaded from a tab-separated file with
// a header row naming at least the "medium" and "compound" columns. Each
// data row adds one compound to one medium.
type MediaDB struct {
	media map[string][]string
	order []string
}

// LoadMediaDB reads a media library from a TSV file.
func LoadMediaDB(path string) (*MediaDB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load media db: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("load media db %s: read header: %w", path, err)
	}
	mediumCol, compoundCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "medium":
			mediumCol = i
		case "compound":
			compoundCol = i
		}
	}
	if mediumCol < 0 || compoundCol < 0 {
		return nil, fmt.Errorf("load media db %s: header must name medium and compound columns", path)
	}

	db := &MediaDB{media: make(map[string][]string)}
	seen := make(map[string]map[string]bool)
	for line := 2; ; line++ {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("load media db %s: line %d: %w", path, line, err)
		}
		if mediumCol >= len(record) || compoundCol >= len(record) {
			return nil, fmt.Errorf("load media db %s: line %d: missing columns", path, line)
		}
		medium := strings.TrimSpace(record[mediumCol])
		compound := strings.TrimSpace(record[compoundCol])
		if medium == "" || compound == "" {
			continue
		}
		if _, ok := db.media[medium]; !ok {
			db.media[medium] = nil
			db.order = append(db.order, medium)
			seen[medium] = make(map[string]bool)
		}
		if !seen[medium][compound] {
			seen[medium][compound] = true
			db.media[medium] = append(db.media[medium], compound)
		}
	}
	return db, nil
}

// Names returns the medium names in file order.
func (db *MediaDB) Names() []string { return db.order }

// Get resolves a medium name to an Environment. The name "complete" always
// resolves, even with an empty library.
func (db *MediaDB) Get(name string) (*Environment, error) {
	if name == CompleteName {
		return Complete(), nil
	}
	compounds, ok := db.media[name]
	if !ok {
		return nil, fmt.Errorf("medium %q not in media db", name)
	}
	return FromCompounds(name, compounds), nil
}

// LoadExcluded reads the excluded-compound list: one compound per line,
// blank lines and '#' comments skipped.
func LoadExcluded(path string) (map[string]bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load excluded compounds: %w", err)
	}
	defer f.Close()

	excluded := make(map[string]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		excluded[line] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load excluded compounds %s: %w", path, err)
	}
	return excluded, nil
}
