// Package sdict implements the sequence and assembly dictionaries that
// every other package in this pipeline treats as shared, read-only state
// for the lifetime of one scaffolding round (spec §3, design note in §9).
package sdict

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/shulp2211/yahs/internal/kinds"
)

// SDict is an ordered sequence dictionary: a stable name->index mapping
// over a set of named, sized sequences (contigs, typically).
type SDict struct {
	names   []string
	lengths []uint32
	index   map[string]int32
}

// New returns an empty SDict.
func New() *SDict {
	return &SDict{index: make(map[string]int32)}
}

// Put appends a new sequence, returning its stable index. It returns an
// InputFormat error if name is already present.
func (d *SDict) Put(name string, length uint32) (int32, error) {
	if _, ok := d.index[name]; ok {
		return -1, errors.E(kinds.InputFormat, fmt.Sprintf("sdict: duplicate sequence name %q", name))
	}
	id := int32(len(d.names))
	d.names = append(d.names, name)
	d.lengths = append(d.lengths, length)
	d.index[name] = id
	return id, nil
}

// Len returns the number of sequences.
func (d *SDict) Len() int { return len(d.names) }

// Name returns the name of sequence id.
func (d *SDict) Name(id int32) string { return d.names[id] }

// Length returns the length of sequence id.
func (d *SDict) Length(id int32) uint32 { return d.lengths[id] }

// Get returns the index of name, or (-1, false) if absent.
func (d *SDict) Get(name string) (int32, bool) {
	id, ok := d.index[name]
	return id, ok
}

// TotalLength returns the sum of all sequence lengths.
func (d *SDict) TotalLength() uint64 {
	var total uint64
	for _, l := range d.lengths {
		total += uint64(l)
	}
	return total
}

// LoadIndex reads a sequence index file: text, one sequence per line,
// "name\tlength\t...", only the first two fields consumed (spec §6). This
// mirrors the already-generated-.fai-style index file; generating such a
// file from a FASTA is out of scope (spec §1, §13).
func LoadIndex(r io.Reader) (*SDict, error) {
	d := New()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, errors.E(kinds.InputFormat, fmt.Sprintf("sdict: malformed index line %d: %q", lineNo, line))
		}
		length, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, errors.E(kinds.InputFormat, fmt.Sprintf("sdict: bad length on line %d: %v", lineNo, err))
		}
		if _, err := d.Put(fields[0], uint32(length)); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(kinds.IOError, err)
	}
	return d, nil
}

// FilterByLength splits d into a dictionary of sequences with length >= ml
// and the held-out sequences below it (spec §6 "ml" option: short
// sequences are held out and re-added at final assembly).
func (d *SDict) FilterByLength(ml uint32) (kept, held *SDict) {
	kept, held = New(), New()
	for i, name := range d.names {
		length := d.lengths[i]
		if length >= ml {
			_, _ = kept.Put(name, length)
		} else {
			_, _ = held.Put(name, length)
		}
	}
	return kept, held
}

// N50 returns the N50 statistic (the length L such that sequences of
// length >= L cover at least half of the total length) over d.
func (d *SDict) N50() uint64 {
	return nStat(d.lengths, 0.5)
}

// N90 returns the N90 statistic.
func (d *SDict) N90() uint64 {
	return nStat(d.lengths, 0.9)
}

func nStat(lengths []uint32, frac float64) uint64 {
	if len(lengths) == 0 {
		return 0
	}
	sorted := append([]uint32(nil), lengths...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] > sorted[j] })
	var total uint64
	for _, l := range sorted {
		total += uint64(l)
	}
	target := float64(total) * frac
	var cum uint64
	for _, l := range sorted {
		cum += uint64(l)
		if float64(cum) >= target {
			return uint64(l)
		}
	}
	return uint64(sorted[len(sorted)-1])
}
