package schemas

import "strconv"

// Mode identifies which score family a run produces.
type Mode string

const (
	ModeGlobal   Mode = "global"
	ModeDetailed Mode = "detailed"
)

// Score is a nullable score cell. Missing values mean "could not be
// computed" and are rendered as "n/a", never as zero.
type Score struct {
	Value float64
	Valid bool
}

// NewScore returns a present score.
func NewScore(v float64) Score {
	return Score{Value: v, Valid: true}
}

// NA returns a missing score.
func NA() Score {
	return Score{}
}

// String renders the cell for TSV output.
func (s Score) String() string {
	if !s.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(s.Value, 'g', 6, 64)
}

// MarshalJSON renders a missing score as null, never as zero.
func (s Score) MarshalJSON() ([]byte, error) {
	if !s.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(s.Value, 'g', -1, 64)), nil
}

// UnmarshalJSON accepts the null produced by MarshalJSON.
func (s *Score) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Score{}
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*s = NewScore(v)
	return nil
}

// GlobalRecord is one row of the global score table: community-level
// resource overlap and interaction potential.
type GlobalRecord struct {
	Community string `json:"community"`
	Medium    string `json:"medium"`
	Size      int    `json:"size"`
	MIP       Score  `json:"mip"`
	MRO       Score  `json:"mro"`
	SMETANA   Score  `json:"smetana"`
}

// DetailedRecord is one row of the detailed score table: a single candidate
// cross-feeding interaction (donor supplies compound to receiver).
type DetailedRecord struct {
	Community string `json:"community"`
	Medium    string `json:"medium"`
	Receiver  string `json:"receiver"`
	Donor     string `json:"donor"`
	Compound  string `json:"compound"`
	SCS       Score  `json:"scs"`
	MUS       Score  `json:"mus"`
	MPS       Score  `json:"mps"`
	SMETANA   Score  `json:"smetana"`
}

// ResultSet accumulates the rows of one run; it is handed to the reporting
// layer once all communities complete. NonGrowing lists organisms that were
// excluded from pairwise scoring because they cannot sustain growth,
// keyed by community id.
type ResultSet struct {
	Global     []GlobalRecord      `json:"global,omitempty"`
	Detailed   []DetailedRecord    `json:"detailed,omitempty"`
	NonGrowing map[string][]string `json:"non_growing,omitempty"`
}

// NewResultSet returns an empty accumulator.
func NewResultSet() *ResultSet {
	return &ResultSet{NonGrowing: make(map[string][]string)}
}

// Merge folds another result set into this one. Used to combine per-worker
// accumulators after parallel sections.
func (rs *ResultSet) Merge(other *ResultSet) {
	if other == nil {
		return
	}
	rs.Global = append(rs.Global, other.Global...)
	rs.Detailed = append(rs.Detailed, other.Detailed...)
	for comm, orgs := range other.NonGrowing {
		rs.NonGrowing[comm] = append(rs.NonGrowing[comm], orgs...)
	}
}
