package enzyme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMotifListExpandsWildcard(t *testing.T) {
	motifs, err := ParseMotifList("GATC,GANTC")
	require.NoError(t, err)
	assert.Contains(t, motifs, "GATC")
	for _, b := range []byte{'A', 'C', 'G', 'T'} {
		assert.Contains(t, motifs, "GA"+string(b)+"TC")
	}
	assert.Len(t, motifs, 1+4)
}

func TestParseMotifListDedupesAndUppercases(t *testing.T) {
	motifs, err := ParseMotifList("gatc, GATC")
	require.NoError(t, err)
	assert.Equal(t, []string{"GATC"}, motifs)
}

func TestParseMotifListEmpty(t *testing.T) {
	motifs, err := ParseMotifList("  ")
	require.NoError(t, err)
	assert.Nil(t, motifs)
}

func TestParseMotifListRejectsInvalidBase(t *testing.T) {
	_, err := ParseMotifList("GATX")
	assert.Error(t, err)
}

func TestFindSitesAdjacentMatches(t *testing.T) {
	seq := []byte("AAGATCGATCAA")
	sites := FindSites(seq, []string{"GATC"})
	assert.Equal(t, []uint32{2, 6}, sites)
}

func TestFindSitesCaseInsensitive(t *testing.T) {
	seq := []byte("aagatcaa")
	sites := FindSites(seq, []string{"GATC"})
	assert.Equal(t, []uint32{2}, sites)
}

func TestSitesCutSiteCount(t *testing.T) {
	s := NewSites(map[int32][]uint32{
		1: {50, 10, 200, 100},
	})
	assert.Equal(t, 2, s.CutSiteCount(1, 0, 60))
	assert.Equal(t, 0, s.CutSiteCount(1, 300, 400))
	assert.Equal(t, 4, s.CutSiteCount(1, 0, 1000))
	assert.Equal(t, 0, s.CutSiteCount(2, 0, 1000))
}

func TestCutSiteCountNilReceiver(t *testing.T) {
	var s *Sites
	assert.Equal(t, 0, s.CutSiteCount(1, 0, 100))
}
