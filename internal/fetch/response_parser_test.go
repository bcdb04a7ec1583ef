package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedInChunks(t *testing.T, raw string, size int) (*responseParser, error) {
	t.Helper()
	p := &responseParser{}
	for i := 0; i < len(raw); i += size {
		end := min(i+size, len(raw))
		if err := p.feed([]byte(raw[i:end])); err != nil {
			return p, err
		}
	}
	return p, nil
}

func TestResponseParser_ChunkBoundaries(t *testing.T) {
	const raw = "HTTP/1.0 200 OK\r\nServer: x\r\n\r\nOK"

	for size := 1; size <= len(raw); size++ {
		p, err := feedInChunks(t, raw, size)
		require.NoError(t, err, "chunk size %d", size)
		assert.Equal(t, 200, p.status, "chunk size %d", size)
		assert.Equal(t, "OK", string(p.body), "chunk size %d", size)
		assert.Equal(t, "x", p.header["server"], "chunk size %d", size)
	}
}

func TestResponseParser_Cases(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		status int
		body   string
		header map[string]string
	}{
		{
			name:   "bare newlines",
			raw:    "HTTP/1.0 301 Moved\nLocation: /new\n\nbody",
			status: 301,
			body:   "body",
			header: map[string]string{"location": "/new"},
		},
		{
			name:   "mixed line endings",
			raw:    "HTTP/1.1 200 OK\r\nA: 1\n\r\nrest",
			status: 200,
			body:   "rest",
			header: map[string]string{"a": "1"},
		},
		{
			name:   "no reason phrase",
			raw:    "HTTP/1.0 204\r\n\r\n",
			status: 204,
		},
		{
			name:   "extra spaces before status",
			raw:    "HTTP/1.0   500 Oops\r\n\r\nx",
			status: 500,
			body:   "x",
		},
		{
			name:   "blank lines inside body are kept",
			raw:    "HTTP/1.0 200 OK\r\n\r\nline1\r\n\r\nline2",
			status: 200,
			body:   "line1\r\n\r\nline2",
		},
		{
			name:   "first header value wins and names fold case",
			raw:    "HTTP/1.0 200 OK\r\nX-Rank: 1\r\nx-rank: 2\r\nbogus line\r\n\r\n",
			status: 200,
			header: map[string]string{"x-rank": "1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := feedInChunks(t, tt.raw, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.status, p.status)
			assert.Equal(t, tt.body, string(p.body))
			for k, v := range tt.header {
				assert.Equal(t, v, p.header[k])
			}
		})
	}
}

func TestResponseParser_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"letter in status", "HTTP/1.0 2O0 OK\r\n\r\n"},
		{"no space on status line", "HTTP/1.0\r\n\r\n"},
		{"empty status", "HTTP/1.0 \r\n\r\n"},
		{"four digit status", "HTTP/1.0 2000 OK\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := feedInChunks(t, tt.raw, 1)
			assert.ErrorIs(t, err, errMalformedStatus)
		})
	}
}

func TestResponseParser_IncompleteHead(t *testing.T) {
	p, err := feedInChunks(t, "HTTP/1.0 200 OK\r\nServer: x\r\n", 4)
	require.NoError(t, err)
	assert.Equal(t, 200, p.status)
	assert.Empty(t, p.body)
}
