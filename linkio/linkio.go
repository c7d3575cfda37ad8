// Package linkio implements the canonical binary link-record format and a
// streaming reader that translates both endpoints of each record into
// scaffold coordinates and routes them to intra- or inter-scaffold sinks
// (spec §4.2). Ingest of alignments from pair/BAM files into this binary
// format is out of scope (spec §1); this package only reads the format
// itself.
package linkio

import (
	"encoding/binary"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/shulp2211/yahs/internal/kinds"
	"github.com/shulp2211/yahs/sdict"
)

// RecordSize is the on-disk size of one Record: two uint32 sequence ids,
// two uint32 positions, two uint8 mapqs, little-endian (spec §3, §6).
const RecordSize = 4 + 4 + 4 + 4 + 1 + 1

// Record is one raw (pre-translation) link observation.
type Record struct {
	SeqIDA, SeqIDB uint32
	PosA, PosB     uint32
	MapQA, MapQB   uint8
}

// ReadRecord reads one Record from r. It returns io.EOF (unwrapped, so
// callers can use it as a loop sentinel) only when the stream ends exactly
// on a record boundary; a partial record at EOF is an InputFormat error.
func ReadRecord(r io.Reader) (Record, error) {
	var buf [RecordSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		if err == io.ErrUnexpectedEOF {
			return Record{}, errors.E(kinds.InputFormat, "linkio: truncated link record")
		}
		return Record{}, errors.E(kinds.IOError, err)
	}
	return Record{
		SeqIDA: binary.LittleEndian.Uint32(buf[0:4]),
		PosA:   binary.LittleEndian.Uint32(buf[4:8]),
		SeqIDB: binary.LittleEndian.Uint32(buf[8:12]),
		PosB:   binary.LittleEndian.Uint32(buf[12:16]),
		MapQA:  buf[16],
		MapQB:  buf[17],
	}, nil
}

// WriteRecord appends rec to w in the same wire format, used by tests and
// by any external ingest collaborator producing this format.
func WriteRecord(w io.Writer, rec Record) error {
	var buf [RecordSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], rec.SeqIDA)
	binary.LittleEndian.PutUint32(buf[4:8], rec.PosA)
	binary.LittleEndian.PutUint32(buf[8:12], rec.SeqIDB)
	binary.LittleEndian.PutUint32(buf[12:16], rec.PosB)
	buf[16] = rec.MapQA
	buf[17] = rec.MapQB
	if _, err := w.Write(buf[:]); err != nil {
		return errors.E(kinds.IOError, err)
	}
	return nil
}

// Sink receives translated link observations. Intra is called when both
// endpoints land in the same scaffold; Inter otherwise, with the pair in
// the order the underlying record appeared (callers needing an unordered
// canonical order should normalize it themselves).
type Sink interface {
	Intra(scaffoldID int32, posA, posB uint32)
	Inter(scaffoldA, scaffoldB int32, posA, posB uint32)
}

// Read streams records from r, translating both endpoints through dict and
// dropping any record with either mapq below mq. It never buffers more
// than one record at a time (spec §4.2: "never holds more than O(1)
// records"). Records whose endpoints fall outside dict (e.g. a sequence
// excluded by the ml length filter) are silently dropped, matching dict
// acting as the scaffolding round's active sequence set.
func Read(r io.Reader, dict *sdict.ADict, mq uint8, sink Sink) error {
	for {
		rec, err := ReadRecord(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if rec.MapQA < mq || rec.MapQB < mq {
			continue
		}
		ca, err := dict.Translate(int32(rec.SeqIDA), rec.PosA)
		if err != nil {
			continue
		}
		cb, err := dict.Translate(int32(rec.SeqIDB), rec.PosB)
		if err != nil {
			continue
		}
		if ca.ScaffoldID == cb.ScaffoldID {
			sink.Intra(ca.ScaffoldID, ca.Pos, cb.Pos)
		} else {
			sink.Inter(ca.ScaffoldID, cb.ScaffoldID, ca.Pos, cb.Pos)
		}
	}
}
