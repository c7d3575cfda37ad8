package sdict

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/shulp2211/yahs/agp"
	"github.com/shulp2211/yahs/internal/kinds"
)

// Orient is a segment's orientation within its scaffold.
type Orient uint8

const (
	Forward Orient = 0
	Reverse Orient = 1
)

// Segment is one tile of a scaffold, tracing back to a contiguous range of
// a source sequence (spec §3).
type Segment struct {
	SourceID      int32  // index into the underlying SDict of source sequences
	SourceOffset  uint32 // offset within the source sequence
	Orient        Orient
	ScaffoldStart uint32 // start within the scaffold
	Length        uint32
}

// OrientedID packs SourceID and Orient the way sdict.h's sd_seg_t.c does:
// (id<<1)|orient.
func (s Segment) OrientedID() uint32 {
	return uint32(s.SourceID)<<1 | uint32(s.Orient)
}

// sourceEnd returns the (exclusive) end offset within the source sequence.
func (s Segment) sourceEnd() uint32 { return s.SourceOffset + s.Length }

// ScaffoldRecord describes one scaffold: a name, total length, and the
// contiguous range of segs it owns.
type ScaffoldRecord struct {
	Name       string
	TotalLen   uint32
	SegCount   int32
	FirstSeg   int32
}

type endEntry struct {
	end uint32 // sourceEnd
	seg int32  // index into ADict.segs
}

// ADict is the assembly dictionary: a partition of the source sequence
// space into scaffolds (spec §3).
type ADict struct {
	Source *SDict // the source (contig) sequence dictionary this overlays

	scaffolds []ScaffoldRecord
	index     map[string]int32 // scaffold name -> scaffold id
	segs      []Segment

	// bySource groups endEntry values per source sequence id, each sorted
	// by end offset, giving O(log n) coordinate translation (spec §4.1).
	bySource map[int32][]endEntry
}

// Len returns the number of scaffolds.
func (d *ADict) Len() int { return len(d.scaffolds) }

// Scaffold returns the scaffold record for id.
func (d *ADict) Scaffold(id int32) ScaffoldRecord { return d.scaffolds[id] }

// Get returns the scaffold id for name, or (-1, false) if absent.
func (d *ADict) Get(name string) (int32, bool) {
	id, ok := d.index[name]
	return id, ok
}

// Segments returns the segments belonging to scaffold id, in
// scaffold-start order.
func (d *ADict) Segments(id int32) []Segment {
	rec := d.scaffolds[id]
	return d.segs[rec.FirstSeg : rec.FirstSeg+rec.SegCount]
}

// TotalLength returns the sum of all scaffold lengths.
func (d *ADict) TotalLength() uint64 {
	var total uint64
	for _, s := range d.scaffolds {
		total += uint64(s.TotalLen)
	}
	return total
}

// N50 returns the N50 statistic over scaffold lengths.
func (d *ADict) N50() uint64 { return d.nStat(0.5) }

// N90 returns the N90 statistic over scaffold lengths.
func (d *ADict) N90() uint64 { return d.nStat(0.9) }

func (d *ADict) nStat(frac float64) uint64 {
	lengths := make([]uint32, len(d.scaffolds))
	for i, s := range d.scaffolds {
		lengths[i] = s.TotalLen
	}
	return nStat(lengths, frac)
}

// builder accumulates scaffolds and segments before the derived lookup
// structures are finalized.
type builder struct {
	sd        *SDict
	scaffolds []ScaffoldRecord
	index     map[string]int32
	segs      []Segment
}

func newBuilder(sd *SDict) *builder {
	return &builder{sd: sd, index: make(map[string]int32)}
}

// addScaffold appends a scaffold built from segs, which must already be in
// ascending scaffold-start order and tile [0, total) without gaps or
// overlaps (spec §3 invariant).
func (b *builder) addScaffold(name string, segs []Segment) error {
	if _, ok := b.index[name]; ok {
		return errors.E(kinds.InputFormat, fmt.Sprintf("adict: duplicate scaffold name %q", name))
	}
	first := int32(len(b.segs))
	var total uint32
	for i, s := range segs {
		if s.ScaffoldStart != total {
			return errors.E(kinds.InputFormat, fmt.Sprintf("adict: scaffold %q segment %d not contiguous (want start %d, got %d)", name, i, total, s.ScaffoldStart))
		}
		if int(s.SourceID) < 0 || int(s.SourceID) >= b.sd.Len() {
			return errors.E(kinds.InputFormat, fmt.Sprintf("adict: scaffold %q segment %d references unknown source id %d", name, i, s.SourceID))
		}
		if uint64(s.SourceOffset)+uint64(s.Length) > uint64(b.sd.Length(s.SourceID)) {
			return errors.E(kinds.InputFormat, fmt.Sprintf("adict: scaffold %q segment %d exceeds source sequence bounds", name, i))
		}
		total += s.Length
	}
	b.segs = append(b.segs, segs...)
	id := int32(len(b.scaffolds))
	b.index[name] = id
	b.scaffolds = append(b.scaffolds, ScaffoldRecord{
		Name:     name,
		TotalLen: total,
		SegCount: int32(len(segs)),
		FirstSeg: first,
	})
	return nil
}

func (b *builder) finish() *ADict {
	d := &ADict{
		Source:    b.sd,
		scaffolds: b.scaffolds,
		index:     b.index,
		segs:      b.segs,
		bySource:  make(map[int32][]endEntry),
	}
	for i, s := range d.segs {
		d.bySource[s.SourceID] = append(d.bySource[s.SourceID], endEntry{end: s.sourceEnd(), seg: int32(i)})
	}
	for id, entries := range d.bySource {
		sort.Slice(entries, func(i, j int) bool { return entries[i].end < entries[j].end })
		d.bySource[id] = entries
	}
	return d
}

// FromSDict builds the trivial ADict overlaying sd: one singleton scaffold
// per source sequence, forward orientation, no gaps.
func FromSDict(sd *SDict) (*ADict, error) {
	b := newBuilder(sd)
	for id := int32(0); id < int32(sd.Len()); id++ {
		length := sd.Length(id)
		seg := Segment{SourceID: id, SourceOffset: 0, Orient: Forward, ScaffoldStart: 0, Length: length}
		if err := b.addScaffold(sd.Name(id), []Segment{seg}); err != nil {
			return nil, err
		}
	}
	return b.finish(), nil
}

// FromAGP builds an ADict from AGP records describing an existing assembly
// over sd. W (placed sequence) records become segments laid end to end;
// every other record, gaps included, is skipped, so scaffold coordinates
// carry no gaps (ToAGP re-inserts them when rendering).
func FromAGP(sd *SDict, records []agp.Record) (*ADict, error) {
	b := newBuilder(sd)
	for _, scaffold := range agp.GroupByScaffold(records) {
		var (
			segs []Segment
			next uint32
		)
		for _, r := range scaffold.Records {
			if r.Type != 'W' {
				continue
			}
			sourceID, ok := sd.Get(r.ComponentID)
			if !ok {
				return nil, errors.E(kinds.InputFormat, fmt.Sprintf("adict: agp references unknown sequence %q", r.ComponentID))
			}
			orient := Forward
			if r.Orientation == '-' {
				orient = Reverse
			}
			length := r.ComponentEnd - r.ComponentBeg + 1
			segs = append(segs, Segment{
				SourceID:      sourceID,
				SourceOffset:  r.ComponentBeg - 1,
				Orient:        orient,
				ScaffoldStart: next,
				Length:        length,
			})
			next += length
		}
		if len(segs) == 0 {
			continue
		}
		if err := b.addScaffold(scaffold.Name, segs); err != nil {
			return nil, err
		}
	}
	return b.finish(), nil
}

// ToAGP renders d as AGP records, one scaffold per entry, inserting a
// fixed-length gap record between consecutive segments (spec §6).
func (d *ADict) ToAGP() []agp.Record {
	var out []agp.Record
	for _, rec := range d.scaffolds {
		segs := d.segs[rec.FirstSeg : rec.FirstSeg+rec.SegCount]
		part := 1
		pos := uint32(1)
		for i, s := range segs {
			if i > 0 {
				out = append(out, agp.Record{
					Object:          rec.Name,
					ObjectBeg:       pos,
					ObjectEnd:       pos + agp.GapLength - 1,
					PartNumber:      part,
					Type:            'N',
					GapLength:       agp.GapLength,
					GapType:         "scaffold",
					Linkage:         "yes",
					LinkageEvidence: "na",
				})
				pos += agp.GapLength
				part++
			}
			orient := byte('+')
			if s.Orient == Reverse {
				orient = '-'
			}
			out = append(out, agp.Record{
				Object:       rec.Name,
				ObjectBeg:    pos,
				ObjectEnd:    pos + s.Length - 1,
				PartNumber:   part,
				Type:         'W',
				ComponentID:  d.Source.Name(s.SourceID),
				ComponentBeg: s.SourceOffset + 1,
				ComponentEnd: s.SourceOffset + s.Length,
				Orientation:  orient,
			})
			pos += s.Length
			part++
		}
	}
	return out
}

// Placement describes one existing scaffold of an ADict placed into a new
// scaffold, in the given orientation (spec §4.7 path extraction output).
type Placement struct {
	ScaffoldID int32
	Orient     Orient
}

func flip(o Orient) Orient {
	if o == Forward {
		return Reverse
	}
	return Forward
}

// FromPlacements builds a new ADict over the same Source by concatenating,
// for each chain, the segments of the listed old-ADict scaffolds in order,
// reversing a scaffold's segment order and flipping its segments'
// orientation where Placement.Orient is Reverse (spec §4.7). Scaffold
// coordinate space stays gap-free, matching FromAGP and ToAGP's
// convention that gaps are a rendering concern, not a coordinate one.
func FromPlacements(old *ADict, names []string, chains [][]Placement) (*ADict, error) {
	if len(names) != len(chains) {
		return nil, errors.E(kinds.InputFormat, "adict: names and chains length mismatch")
	}
	b := newBuilder(old.Source)
	for ci, chain := range chains {
		var segs []Segment
		var next uint32
		for _, p := range chain {
			srcSegs := old.Segments(p.ScaffoldID)
			ordered := srcSegs
			if p.Orient == Reverse {
				ordered = make([]Segment, len(srcSegs))
				for i, s := range srcSegs {
					ordered[len(srcSegs)-1-i] = s
				}
			}
			for _, s := range ordered {
				orient := s.Orient
				if p.Orient == Reverse {
					orient = flip(orient)
				}
				segs = append(segs, Segment{
					SourceID:      s.SourceID,
					SourceOffset:  s.SourceOffset,
					Orient:        orient,
					ScaffoldStart: next,
					Length:        s.Length,
				})
				next += s.Length
			}
		}
		if err := b.addScaffold(names[ci], segs); err != nil {
			return nil, err
		}
	}
	return b.finish(), nil
}

// SliceSegments returns the segments of scaffold id restricted to the
// half-open scaffold-coordinate range [start, end), rebased so the slice
// itself starts at coordinate 0, clipping any segment that straddles a
// boundary (spec §4.8: error-break output is a set of sub-scaffold
// slices of the scaffold it broke).
func (d *ADict) SliceSegments(id int32, start, end uint32) []Segment {
	var out []Segment
	for _, s := range d.Segments(id) {
		segEnd := s.ScaffoldStart + s.Length
		lo, hi := s.ScaffoldStart, segEnd
		if lo < start {
			lo = start
		}
		if hi > end {
			hi = end
		}
		if hi <= lo {
			continue
		}
		clipFront := lo - s.ScaffoldStart
		clipBack := segEnd - hi
		sourceOffset := s.SourceOffset + clipFront
		if s.Orient == Reverse {
			sourceOffset = s.SourceOffset + clipBack
		}
		out = append(out, Segment{
			SourceID:      s.SourceID,
			SourceOffset:  sourceOffset,
			Orient:        s.Orient,
			ScaffoldStart: lo - start,
			Length:        hi - lo,
		})
	}
	return out
}

// SliceDef names one sub-scaffold slice to cut from an existing ADict.
type SliceDef struct {
	Name           string
	SourceScaffold int32
	Start, End     uint32
}

// FromSlices builds a new ADict whose scaffolds are the named slices of
// old, used to render error-break output (spec §4.8): a cut produces two
// adjacent slices, an excision produces two slices with the excised
// range dropped between them.
func FromSlices(old *ADict, defs []SliceDef) (*ADict, error) {
	b := newBuilder(old.Source)
	for _, d := range defs {
		segs := old.SliceSegments(d.SourceScaffold, d.Start, d.End)
		if len(segs) == 0 {
			continue
		}
		if err := b.addScaffold(d.Name, segs); err != nil {
			return nil, err
		}
	}
	return b.finish(), nil
}

// Coord is the result of translating a (source sequence, position) pair
// into scaffold space (spec §4.1).
type Coord struct {
	ScaffoldID  int32
	Pos         uint32 // position within the scaffold
	Orient      Orient // orientation of the source sequence within the scaffold
}

// Translate converts (sourceID, pos) into scaffold coordinates. It runs in
// O(log n) via a per-source sorted table of segment end offsets (spec
// §4.1), and fails with an InputFormat error if sourceID is unknown to d or
// pos falls in a gap/out of range for every segment of that source.
func (d *ADict) Translate(sourceID int32, pos uint32) (Coord, error) {
	entries, ok := d.bySource[sourceID]
	if !ok {
		return Coord{}, errors.E(kinds.InputFormat, fmt.Sprintf("adict: unknown source sequence id %d", sourceID))
	}
	idx := sort.Search(len(entries), func(i int) bool { return entries[i].end > pos })
	if idx == len(entries) {
		return Coord{}, errors.E(kinds.InputFormat, fmt.Sprintf("adict: position %d out of range for source %d", pos, sourceID))
	}
	seg := d.segs[entries[idx].seg]
	if pos < seg.SourceOffset {
		return Coord{}, errors.E(kinds.InputFormat, fmt.Sprintf("adict: position %d not covered by any segment of source %d", pos, sourceID))
	}
	// The owning scaffold is recovered with a binary search over scaffold
	// FirstSeg boundaries rather than a linear scan over scaffold ranges.
	scaffoldID := d.scaffoldOf(entries[idx].seg)
	offsetInSeg := pos - seg.SourceOffset
	var scaffoldPos uint32
	if seg.Orient == Forward {
		scaffoldPos = seg.ScaffoldStart + offsetInSeg
	} else {
		scaffoldPos = seg.ScaffoldStart + (seg.Length - 1 - offsetInSeg)
	}
	return Coord{ScaffoldID: scaffoldID, Pos: scaffoldPos, Orient: seg.Orient}, nil
}

// scaffoldOf returns the scaffold id owning segment index segIdx, via
// binary search over scaffold FirstSeg boundaries (O(log n) in the number
// of scaffolds).
func (d *ADict) scaffoldOf(segIdx int32) int32 {
	return int32(sort.Search(len(d.scaffolds), func(i int) bool {
		return d.scaffolds[i].FirstSeg+d.scaffolds[i].SegCount > segIdx
	}))
}

// Invert converts scaffold coordinates back to (source sequence id,
// position), the inverse of Translate (spec §8 property 1).
func (d *ADict) Invert(scaffoldID int32, scaffoldPos uint32) (sourceID int32, pos uint32, orient Orient, err error) {
	segs := d.Segments(scaffoldID)
	i := sort.Search(len(segs), func(i int) bool { return segs[i].ScaffoldStart+segs[i].Length > scaffoldPos })
	if i == len(segs) || scaffoldPos < segs[i].ScaffoldStart {
		return 0, 0, 0, errors.E(kinds.InputFormat, fmt.Sprintf("adict: scaffold position %d:%d in a gap or out of range", scaffoldID, scaffoldPos))
	}
	seg := segs[i]
	offsetInScaffold := scaffoldPos - seg.ScaffoldStart
	if seg.Orient == Forward {
		pos = seg.SourceOffset + offsetInScaffold
	} else {
		pos = seg.SourceOffset + (seg.Length - 1 - offsetInScaffold)
	}
	return seg.SourceID, pos, seg.Orient, nil
}
