package bufioutil

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferedSeeker(t *testing.T) {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"

	bs := NewBufferedSeeker(bytes.NewReader([]byte(alphabet)), 16)

	p := make([]byte, 4)
	_, err := io.ReadFull(bs, p)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(p))

	// der Puffer hat mehr gelesen, der Offset muss trotzdem 4 sein
	offset, err := bs.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(4), offset)

	offset, err = bs.Seek(2, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), offset)

	_, err = io.ReadFull(bs, p)
	require.NoError(t, err)
	assert.Equal(t, "ghij", string(p))

	offset, err = bs.Seek(-3, io.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(23), offset)

	rest, err := io.ReadAll(bs)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(rest))
}
