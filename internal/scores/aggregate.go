package scores

import (
	"sort"

	"github.com/cdanielmachado/smetana/api/schemas"
	"github.com/cdanielmachado/smetana/internal/community"
)

// AggregateOptions shapes how raw detailed scores become report rows.
type AggregateOptions struct {
	// Zeros keeps rows whose combined score is exactly zero.
	Zeros bool
	// Excluded drops the named compounds from the report entirely.
	Excluded map[string]bool
	// IgnoreCoupling marks the SCS column n/a and combines only uptake and
	// production.
	IgnoreCoupling bool
}

// Aggregate turns a detailed result into one report row per
// (receiver, donor, compound) triple. Rows for organisms that cannot grow
// carry n/a scores; rows whose combined score is zero are dropped unless
// requested.
func Aggregate(com *community.Community, res *DetailedResult, medium string, opts AggregateOptions) []schemas.DetailedRecord {
	nonGrowing := make(map[string]bool, len(res.NonGrowing))
	for _, org := range res.NonGrowing {
		nonGrowing[org] = true
	}

	var records []schemas.DetailedRecord
	for _, receiver := range res.Organisms {
		receiverCompounds := make(map[string]bool)
		for _, b := range com.Shuttles(receiver) {
			receiverCompounds[b.Compound] = true
		}
		for _, donor := range res.Organisms {
			if donor == receiver {
				continue
			}
			for _, compound := range donorCompounds(com, res, donor) {
				if !receiverCompounds[compound] || opts.Excluded[compound] {
					continue
				}
				rec := schemas.DetailedRecord{
					Community: com.ID,
					Medium:    medium,
					Receiver:  receiver,
					Donor:     donor,
					Compound:  compound,
					SCS:       schemas.NA(),
					MUS:       schemas.NA(),
					MPS:       schemas.NA(),
					SMETANA:   schemas.NA(),
				}
				if nonGrowing[receiver] || nonGrowing[donor] {
					records = append(records, rec)
					continue
				}

				combined := 1.0
				valid := true

				if opts.IgnoreCoupling {
					// SCS column stays n/a.
				} else if scs, ok := res.SCS[receiver]; ok {
					rec.SCS = schemas.NewScore(scs[donor])
					combined *= scs[donor]
				} else {
					valid = false
				}
				if mus, ok := res.MUS[receiver]; ok {
					rec.MUS = schemas.NewScore(mus[compound])
					combined *= mus[compound]
				} else {
					valid = false
				}
				if mps, ok := res.MPS[donor]; ok {
					rec.MPS = schemas.NewScore(mps[compound])
					combined *= mps[compound]
				} else {
					valid = false
				}

				if valid {
					rec.SMETANA = schemas.NewScore(combined)
					if combined == 0 && !opts.Zeros {
						continue
					}
				}
				records = append(records, rec)
			}
		}
	}
	return records
}

// donorCompounds lists the compounds a donor could contribute, in sorted
// order: the keys of its production map when computed, otherwise every
// compound it can exchange.
func donorCompounds(com *community.Community, res *DetailedResult, donor string) []string {
	var compounds []string
	if mps, ok := res.MPS[donor]; ok {
		for c := range mps {
			compounds = append(compounds, c)
		}
	} else {
		for _, b := range com.Shuttles(donor) {
			compounds = append(compounds, b.Compound)
		}
	}
	sort.Strings(compounds)
	return compounds
}

// Total sums the combined scores of all rows into the community-level
// cross-feeding potential. It is n/a if any member never grew, since the
// missing interactions cannot be valued.
func Total(res *DetailedResult, records []schemas.DetailedRecord) schemas.Score {
	if len(res.NonGrowing) > 0 {
		return schemas.NA()
	}
	sum := 0.0
	for _, rec := range records {
		if rec.SMETANA.Valid {
			sum += rec.SMETANA.Value
		}
	}
	return schemas.NewScore(sum)
}
