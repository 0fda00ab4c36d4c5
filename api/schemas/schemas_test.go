package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreString(t *testing.T) {
	assert.Equal(t, "n/a", NA().String())
	assert.Equal(t, "0.25", NewScore(0.25).String())
	assert.Equal(t, "0", NewScore(0).String())
}

func TestResultSetMerge(t *testing.T) {
	a := NewResultSet()
	a.Global = append(a.Global, GlobalRecord{Community: "c1", Medium: "M9"})
	a.NonGrowing["c1"] = []string{"org1"}

	b := NewResultSet()
	b.Detailed = append(b.Detailed, DetailedRecord{Community: "c1", Donor: "org2", Receiver: "org3"})
	b.NonGrowing["c1"] = []string{"org4"}

	a.Merge(b)
	assert.Len(t, a.Global, 1)
	assert.Len(t, a.Detailed, 1)
	assert.ElementsMatch(t, []string{"org1", "org4"}, a.NonGrowing["c1"])

	// merging nil is a no-op
	a.Merge(nil)
	assert.Len(t, a.Global, 1)
}
