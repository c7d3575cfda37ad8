package agp

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteScaffoldsSortsByDescendingLength(t *testing.T) {
	scaffolds := []Scaffold{
		{Name: "short", Length: 100, Records: []Record{
			{Object: "short", ObjectBeg: 1, ObjectEnd: 100, PartNumber: 1, Type: 'W', ComponentID: "c1", ComponentBeg: 1, ComponentEnd: 100, Orientation: '+'},
		}},
		{Name: "long", Length: 500, Records: []Record{
			{Object: "long", ObjectBeg: 1, ObjectEnd: 500, PartNumber: 1, Type: 'W', ComponentID: "c2", ComponentBeg: 1, ComponentEnd: 500, Orientation: '+'},
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteScaffolds(&buf, scaffolds))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "long"))
	assert.True(t, strings.HasPrefix(lines[1], "short"))
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	scaffolds := []Scaffold{
		{Name: "s1", Length: 300, Records: []Record{
			{Object: "s1", ObjectBeg: 1, ObjectEnd: 100, PartNumber: 1, Type: 'W', ComponentID: "c1", ComponentBeg: 1, ComponentEnd: 100, Orientation: '+'},
			{Object: "s1", ObjectBeg: 101, ObjectEnd: 200, PartNumber: 2, Type: 'N', GapLength: 100, GapType: "scaffold", Linkage: "yes", LinkageEvidence: "na"},
			{Object: "s1", ObjectBeg: 201, ObjectEnd: 300, PartNumber: 3, Type: 'W', ComponentID: "c2", ComponentBeg: 1, ComponentEnd: 100, Orientation: '-'},
		}},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteScaffolds(&buf, scaffolds))

	records, err := ReadRecords(&buf)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "s1", records[0].Object)
	assert.Equal(t, byte('W'), records[0].Type)
	assert.Equal(t, "c1", records[0].ComponentID)
	assert.Equal(t, byte('+'), records[0].Orientation)
	assert.Equal(t, byte('N'), records[1].Type)
	assert.Equal(t, uint32(100), records[1].GapLength)
	assert.Equal(t, byte('-'), records[2].Orientation)
}

func TestReadRecordsSkipsCommentsAndBlankLines(t *testing.T) {
	in := "# header comment\n\ns1\t1\t100\t1\tW\tc1\t1\t100\t+\n"
	records, err := ReadRecords(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestReadRecordsRejectsShortLine(t *testing.T) {
	_, err := ReadRecords(strings.NewReader("s1\t1\t100\n"))
	assert.Error(t, err)
}

func TestReadRecordsRejectsBadOrientation(t *testing.T) {
	_, err := ReadRecords(strings.NewReader("s1\t1\t100\t1\tW\tc1\t1\t100\tx\n"))
	assert.Error(t, err)
}

func TestReadRecordsRejectsUnsupportedType(t *testing.T) {
	_, err := ReadRecords(strings.NewReader("s1\t1\t100\t1\tZ\tc1\t1\t100\tx\n"))
	assert.Error(t, err)
}

func TestGroupByScaffoldPreservesOrder(t *testing.T) {
	records := []Record{
		{Object: "b", ObjectEnd: 100, Type: 'W'},
		{Object: "a", ObjectEnd: 50, Type: 'W'},
		{Object: "b", ObjectEnd: 200, Type: 'W'},
	}
	groups := GroupByScaffold(records)
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].Name)
	assert.Equal(t, uint32(200), groups[0].Length)
	assert.Len(t, groups[0].Records, 2)
	assert.Equal(t, "a", groups[1].Name)
}
