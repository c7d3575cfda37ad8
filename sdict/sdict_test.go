package sdict

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGet(t *testing.T) {
	d := New()
	id, err := d.Put("chr1", 1000)
	require.NoError(t, err)
	assert.Equal(t, int32(0), id)

	id2, err := d.Put("chr2", 2000)
	require.NoError(t, err)
	assert.Equal(t, int32(1), id2)

	got, ok := d.Get("chr1")
	assert.True(t, ok)
	assert.Equal(t, int32(0), got)

	assert.Equal(t, "chr1", d.Name(0))
	assert.Equal(t, uint32(1000), d.Length(0))
	assert.Equal(t, 2, d.Len())
	assert.Equal(t, uint64(3000), d.TotalLength())
}

func TestPutDuplicateNameFails(t *testing.T) {
	d := New()
	_, err := d.Put("chr1", 1000)
	require.NoError(t, err)
	_, err = d.Put("chr1", 500)
	assert.Error(t, err)
}

func TestGetMissingName(t *testing.T) {
	d := New()
	_, ok := d.Get("nope")
	assert.False(t, ok)
}

func TestLoadIndex(t *testing.T) {
	r := strings.NewReader("chr1\t1000\tsomething\nchr2\t2000\n\nchr3\t3000\n")
	d, err := LoadIndex(r)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Len())
	assert.Equal(t, uint32(1000), d.Length(0))
	assert.Equal(t, uint32(2000), d.Length(1))
	assert.Equal(t, uint32(3000), d.Length(2))
}

func TestLoadIndexMalformedLine(t *testing.T) {
	r := strings.NewReader("chr1\n")
	_, err := LoadIndex(r)
	assert.Error(t, err)
}

func TestLoadIndexBadLength(t *testing.T) {
	r := strings.NewReader("chr1\tabc\n")
	_, err := LoadIndex(r)
	assert.Error(t, err)
}

func TestFilterByLength(t *testing.T) {
	d := New()
	_, _ = d.Put("big", 100000)
	_, _ = d.Put("small", 500)

	kept, held := d.FilterByLength(1000)
	assert.Equal(t, 1, kept.Len())
	assert.Equal(t, "big", kept.Name(0))
	assert.Equal(t, 1, held.Len())
	assert.Equal(t, "small", held.Name(0))
}

func TestN50(t *testing.T) {
	d := New()
	_, _ = d.Put("a", 10)
	_, _ = d.Put("b", 20)
	_, _ = d.Put("c", 30)
	_, _ = d.Put("d", 40)
	// total = 100, half = 50; sorted desc: 40,30,20,10; cum 40 < 50, cum 70 >= 50 -> N50 = 30
	assert.Equal(t, uint64(30), d.N50())
}

func TestN50Empty(t *testing.T) {
	d := New()
	assert.Equal(t, uint64(0), d.N50())
}
