package linkio

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shulp2211/yahs/sdict"
)

func TestWriteReadRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	rec := Record{SeqIDA: 1, PosA: 100, SeqIDB: 2, PosB: 200, MapQA: 30, MapQB: 40}
	require.NoError(t, WriteRecord(&buf, rec))
	got, err := ReadRecord(&buf)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestReadRecordEOF(t *testing.T) {
	_, err := ReadRecord(bytes.NewReader(nil))
	assert.Equal(t, io.EOF, err)
}

func TestReadRecordTruncated(t *testing.T) {
	_, err := ReadRecord(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
}

type recordingSink struct {
	intra []intraCall
	inter []interCall
}
type intraCall struct {
	scaffoldID int32
	posA, posB uint32
}
type interCall struct {
	scaffoldA, scaffoldB int32
	posA, posB           uint32
}

func (s *recordingSink) Intra(scaffoldID int32, posA, posB uint32) {
	s.intra = append(s.intra, intraCall{scaffoldID, posA, posB})
}
func (s *recordingSink) Inter(scaffoldA, scaffoldB int32, posA, posB uint32) {
	s.inter = append(s.inter, interCall{scaffoldA, scaffoldB, posA, posB})
}

func buildDict(t *testing.T, lengths ...uint32) *sdict.ADict {
	t.Helper()
	sd := sdict.New()
	for i, l := range lengths {
		_, err := sd.Put(string(rune('a'+i)), l)
		require.NoError(t, err)
	}
	ad, err := sdict.FromSDict(sd)
	require.NoError(t, err)
	return ad
}

func TestReadRoutesIntraAndInter(t *testing.T) {
	dict := buildDict(t, 1000, 1000)
	var buf bytes.Buffer
	// intra link within scaffold 0
	require.NoError(t, WriteRecord(&buf, Record{SeqIDA: 0, PosA: 10, SeqIDB: 0, PosB: 20, MapQA: 50, MapQB: 50}))
	// inter link between scaffold 0 and 1
	require.NoError(t, WriteRecord(&buf, Record{SeqIDA: 0, PosA: 5, SeqIDB: 1, PosB: 15, MapQA: 50, MapQB: 50}))

	sink := &recordingSink{}
	require.NoError(t, Read(&buf, dict, 0, sink))
	require.Len(t, sink.intra, 1)
	assert.Equal(t, int32(0), sink.intra[0].scaffoldID)
	assert.Equal(t, uint32(10), sink.intra[0].posA)
	require.Len(t, sink.inter, 1)
	assert.Equal(t, int32(0), sink.inter[0].scaffoldA)
	assert.Equal(t, int32(1), sink.inter[0].scaffoldB)
}

func TestReadDropsRecordsBelowMapQ(t *testing.T) {
	dict := buildDict(t, 1000)
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, Record{SeqIDA: 0, PosA: 10, SeqIDB: 0, PosB: 20, MapQA: 5, MapQB: 50}))

	sink := &recordingSink{}
	require.NoError(t, Read(&buf, dict, 30, sink))
	assert.Empty(t, sink.intra)
	assert.Empty(t, sink.inter)
}

func TestReadSkipsUnknownSequence(t *testing.T) {
	dict := buildDict(t, 1000)
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, Record{SeqIDA: 0, PosA: 10, SeqIDB: 99, PosB: 20, MapQA: 50, MapQB: 50}))

	sink := &recordingSink{}
	require.NoError(t, Read(&buf, dict, 0, sink))
	assert.Empty(t, sink.intra)
	assert.Empty(t, sink.inter)
}

func TestReadIsIdempotent(t *testing.T) {
	// spec §8 invariant 6: reading the same byte stream twice yields the
	// same accumulated results.
	dict := buildDict(t, 1000, 1000)
	var buf bytes.Buffer
	require.NoError(t, WriteRecord(&buf, Record{SeqIDA: 0, PosA: 10, SeqIDB: 1, PosB: 20, MapQA: 50, MapQB: 50}))
	data := buf.Bytes()

	sink1 := &recordingSink{}
	require.NoError(t, Read(bytes.NewReader(data), dict, 0, sink1))
	sink2 := &recordingSink{}
	require.NoError(t, Read(bytes.NewReader(data), dict, 0, sink2))
	assert.Equal(t, sink1.inter, sink2.inter)
	assert.Equal(t, sink1.intra, sink2.intra)
}
