package modelio

import (
	"bytes"
	"errors"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/learnkit/core"
)

func TestFieldRoundTrip(t *testing.T) {
	for _, text := range []bool{false, true} {
		var buf bytes.Buffer
		w := NewWriter(&buf, text)
		_, err := WriteField(w, float32(math.MaxFloat32), "max")
		require.NoError(t, err)
		_, err = WriteField(w, float32(-0.125), "neg")
		require.NoError(t, err)
		_, err = WriteField(w, uint32(42), "count")
		require.NoError(t, err)
		_, err = WriteField(w, uint64(1)<<40, "big")
		require.NoError(t, err)
		_, err = WriteField(w, true, "flag")
		require.NoError(t, err)
		_, err = w.WriteString("hello = world\n", "tag")
		require.NoError(t, err)
		require.NoError(t, w.Flush())

		r := NewReader(&buf, text)
		var (
			maxVal, neg float32
			count       uint32
			big         uint64
			flag        bool
		)
		_, err = ReadField(r, &maxVal, "max")
		require.NoError(t, err)
		_, err = ReadField(r, &neg, "neg")
		require.NoError(t, err)
		_, err = ReadField(r, &count, "count")
		require.NoError(t, err)
		_, err = ReadField(r, &big, "big")
		require.NoError(t, err)
		_, err = ReadField(r, &flag, "flag")
		require.NoError(t, err)
		tag, _, err := r.ReadString("tag")
		require.NoError(t, err)

		assert.Equal(t, float32(math.MaxFloat32), maxVal, "text=%v", text)
		assert.Equal(t, float32(-0.125), neg)
		assert.Equal(t, uint32(42), count)
		assert.Equal(t, uint64(1)<<40, big)
		assert.True(t, flag)
		assert.Equal(t, "hello = world\n", tag)
	}
}

func TestTextFieldNameMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, true)
	_, err := WriteField(w, float32(1), "a")
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	assert.Equal(t, "a = 1\n", buf.String())

	var v float32
	_, err = ReadField(NewReader(&buf, true), &v, "b")
	require.Error(t, err)
	assert.Equal(t, core.ErrorCodeInvalidInput, core.GetDomainError(err).Code)
}

func TestReadFieldEOF(t *testing.T) {
	var v uint32
	_, err := ReadField(NewReader(bytes.NewReader(nil), false), &v, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.EOF))

	_, err = ReadField(NewReader(bytes.NewReader([]byte{1, 2}), false), &v, "x")
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}

func TestReadStringRejectsOversizedLength(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"max uint32", []byte{0xff, 0xff, 0xff, 0xff, 'x'}},
		{"foreign bytes", []byte("hello world")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewReader(bytes.NewReader(tt.data), false).ReadString("tag")
			require.Error(t, err)
			assert.Equal(t, core.ErrorCodeInvalidInput, core.GetDomainError(err).Code)
			assert.False(t, errors.Is(err, io.ErrUnexpectedEOF), "%v", err)
		})
	}

	var buf bytes.Buffer
	_, err := NewWriter(&buf, false).WriteString(strings.Repeat("a", MaxStringLen+1), "tag")
	assert.True(t, core.IsDomainError(err), "%v", err)

	buf.Reset()
	w := NewWriter(&buf, false)
	_, err = w.WriteString(strings.Repeat("a", MaxStringLen), "tag")
	require.NoError(t, err)
	require.NoError(t, w.Flush())
	s, _, err := NewReader(&buf, false).ReadString("tag")
	require.NoError(t, err)
	assert.Len(t, s, MaxStringLen)
}
