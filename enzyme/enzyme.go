// Package enzyme parses restriction-enzyme motif lists and represents the
// resulting cut-site table that intramat uses to scale cell areas.
// Discovering cut sites in real contig sequences is an external
// collaborator's job (spec §1, §13: "restriction-enzyme site discovery in
// sequences" is out of scope) — this package only parses the motif
// grammar (spec §6) and models the lookup table the discoverer would hand
// back, plus a byte-scanning helper usable against in-memory sequence data
// (e.g. in tests) that does not require FASTA I/O.
package enzyme

import (
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/shulp2211/yahs/internal/kinds"
)

var bases = [4]byte{'A', 'C', 'G', 'T'}

// ParseMotifList parses a comma-separated ASCII motif list, expanding each
// 'N' in a motif to {A,C,G,T} (spec §6). The result is the set of concrete
// motifs to search for; duplicates are removed.
func ParseMotifList(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	seen := map[string]bool{}
	var out []string
	for _, raw := range strings.Split(s, ",") {
		motif := strings.ToUpper(strings.TrimSpace(raw))
		if motif == "" {
			continue
		}
		for _, c := range motif {
			switch c {
			case 'A', 'C', 'G', 'T', 'N':
			default:
				return nil, errors.E(kinds.InputFormat, fmt.Sprintf("enzyme: invalid base %q in motif %q", string(c), motif))
			}
		}
		for _, expanded := range expand(motif) {
			if !seen[expanded] {
				seen[expanded] = true
				out = append(out, expanded)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func expand(motif string) []string {
	n := strings.IndexByte(motif, 'N')
	if n == -1 {
		return []string{motif}
	}
	var out []string
	for _, b := range bases {
		variant := motif[:n] + string(b) + motif[n+1:]
		out = append(out, expand(variant)...)
	}
	return out
}

// Sites is a per-source-sequence table of sorted, 0-based cut-site
// positions.
type Sites struct {
	bySeq map[int32][]uint32
}

// NewSites builds a Sites table from a caller-supplied mapping, sorting
// each sequence's positions.
func NewSites(bySeq map[int32][]uint32) *Sites {
	s := &Sites{bySeq: make(map[int32][]uint32, len(bySeq))}
	for id, positions := range bySeq {
		sorted := append([]uint32(nil), positions...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		s.bySeq[id] = sorted
	}
	return s
}

// FindSites scans an in-memory sequence for occurrences of any of motifs
// (including overlapping matches), returning 0-based match-start positions.
// This operates on bytes already in hand; retrieving those bytes from a
// FASTA file is out of scope here (spec §1).
func FindSites(seq []byte, motifs []string) []uint32 {
	var sites []uint32
	up := make([]byte, len(seq))
	for i, c := range seq {
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		up[i] = c
	}
	for _, motif := range motifs {
		m := []byte(motif)
		if len(m) == 0 || len(m) > len(up) {
			continue
		}
		for i := 0; i+len(m) <= len(up); i++ {
			if string(up[i:i+len(m)]) == motif {
				sites = append(sites, uint32(i))
			}
		}
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

// CutSiteCount returns the number of cut sites within [start, end) of
// source sequence id. If id has no entry, the table is treated as having
// no enzyme information for it, and CutSiteCount returns 0.
func (s *Sites) CutSiteCount(id int32, start, end uint32) int {
	if s == nil {
		return 0
	}
	positions := s.bySeq[id]
	lo := sort.Search(len(positions), func(i int) bool { return positions[i] >= start })
	hi := sort.Search(len(positions), func(i int) bool { return positions[i] >= end })
	return hi - lo
}
