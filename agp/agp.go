// Package agp implements this pipeline's own AGP 2.x dialect: a reader and
// writer for exactly the two record types the scaffolding core emits and
// consumes (W: placed sequence, N: fixed-length assembly gap). A generic
// AGP parsing library is out of scope (spec §1, §13); this is the minimal
// container needed because the AGP file is the sole cross-round persistent
// artifact (spec §3).
package agp

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/shulp2211/yahs/internal/kinds"
)

// GapLength is the fixed gap size this dialect emits between segments
// (spec §6: "gap of fixed length 100").
const GapLength = 100

// Record is one line of an AGP file, either a placed-sequence line (W) or
// a gap line (N). Exactly one of the W-only and N-only field groups is
// meaningful, selected by Type.
type Record struct {
	Object     string // scaffold name
	ObjectBeg  uint32 // 1-based, inclusive
	ObjectEnd  uint32 // 1-based, inclusive
	PartNumber int
	Type       byte // 'W' or 'N'

	// W fields.
	ComponentID   string
	ComponentBeg  uint32 // 1-based, inclusive
	ComponentEnd  uint32 // 1-based, inclusive
	Orientation   byte   // '+' or '-'

	// N fields.
	GapLength       uint32
	GapType         string // "scaffold"
	Linkage         string // "yes"
	LinkageEvidence string // "na"
}

// Scaffold groups the records belonging to one scaffold, in object order.
type Scaffold struct {
	Name    string
	Length  uint32
	Records []Record
}

// WriteScaffolds writes scaffolds to w, sorted by descending total length
// (spec §6 "Scaffolds are emitted sorted by descending total length").
func WriteScaffolds(w io.Writer, scaffolds []Scaffold) error {
	sorted := append([]Scaffold(nil), scaffolds...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Length > sorted[j].Length })

	tw := tsv.NewWriter(w)
	for _, s := range sorted {
		for _, r := range s.Records {
			tw.WriteString(r.Object)
			tw.WriteInt64(int64(r.ObjectBeg))
			tw.WriteInt64(int64(r.ObjectEnd))
			tw.WriteInt64(int64(r.PartNumber))
			tw.WriteString(string(r.Type))
			if r.Type == 'W' {
				tw.WriteString(r.ComponentID)
				tw.WriteInt64(int64(r.ComponentBeg))
				tw.WriteInt64(int64(r.ComponentEnd))
				tw.WriteString(string(r.Orientation))
			} else {
				tw.WriteInt64(int64(r.GapLength))
				tw.WriteString(r.GapType)
				tw.WriteString(r.Linkage)
				tw.WriteString(r.LinkageEvidence)
			}
			if err := tw.EndLine(); err != nil {
				return errors.E(kinds.IOError, err)
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return errors.E(kinds.IOError, err)
	}
	return nil
}

// ReadRecords parses an AGP stream into records, in file order. Comment
// lines (leading '#') and blank lines are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	var records []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 9 {
			return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d has %d fields, want >= 9", lineNo, len(fields)))
		}
		rec := Record{Object: fields[0]}
		var err error
		if rec.ObjectBeg, err = parseUint32(fields[1]); err != nil {
			return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d: %v", lineNo, err))
		}
		if rec.ObjectEnd, err = parseUint32(fields[2]); err != nil {
			return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d: %v", lineNo, err))
		}
		partNum, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d: %v", lineNo, err))
		}
		rec.PartNumber = partNum
		if len(fields[4]) != 1 {
			return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d: bad component type %q", lineNo, fields[4]))
		}
		rec.Type = fields[4][0]
		switch rec.Type {
		case 'W':
			rec.ComponentID = fields[5]
			if rec.ComponentBeg, err = parseUint32(fields[6]); err != nil {
				return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d: %v", lineNo, err))
			}
			if rec.ComponentEnd, err = parseUint32(fields[7]); err != nil {
				return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d: %v", lineNo, err))
			}
			if len(fields[8]) != 1 || (fields[8] != "+" && fields[8] != "-") {
				return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d: bad orientation %q", lineNo, fields[8]))
			}
			rec.Orientation = fields[8][0]
		case 'N', 'U':
			gapLen, err := parseUint32(fields[5])
			if err != nil {
				return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d: %v", lineNo, err))
			}
			rec.GapLength = gapLen
			rec.GapType = fields[6]
			if len(fields) > 7 {
				rec.Linkage = fields[7]
			}
			if len(fields) > 8 {
				rec.LinkageEvidence = fields[8]
			}
		default:
			return nil, errors.E(kinds.InputFormat, fmt.Sprintf("agp: line %d: unsupported record type %q", lineNo, string(rec.Type)))
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.E(kinds.IOError, err)
	}
	return records, nil
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	return uint32(v), err
}

// GroupByScaffold collapses a flat record stream into per-scaffold groups,
// preserving object order within each scaffold and first-appearance order
// across scaffolds.
func GroupByScaffold(records []Record) []Scaffold {
	var (
		order  []string
		byName = map[string]*Scaffold{}
	)
	for _, r := range records {
		s, ok := byName[r.Object]
		if !ok {
			s = &Scaffold{Name: r.Object}
			byName[r.Object] = s
			order = append(order, r.Object)
		}
		s.Records = append(s.Records, r)
		if r.ObjectEnd > s.Length {
			s.Length = r.ObjectEnd
		}
	}
	out := make([]Scaffold, 0, len(order))
	for _, name := range order {
		out = append(out, *byName[name])
	}
	return out
}
