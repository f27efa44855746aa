package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const historyPayload = `[{"_id":"65a1","inputType":"code","riskScore":82,"vulnerabilities":[],"createdAt":"2024-01-01T10:00:00Z"}]`

func encode(t *testing.T, encoding, plain string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "deflate":
		w = zlib.NewWriter(&buf)
	case "raw-deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	default:
		t.Fatalf("unknown encoding %s", encoding)
	}
	_, err := w.Write([]byte(plain))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestCompressionMiddleware_DecodesEncodings(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		header   string
	}{
		{"Brotli", "br", "br"},
		{"Gzip", "gzip", "gzip"},
		{"Zlib deflate", "deflate", "deflate"},
		{"Raw deflate", "raw-deflate", "deflate"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			body := encode(t, tc.encoding, historyPayload)
			gotAccept := make(chan string, 1)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAccept <- r.Header.Get("Accept-Encoding")
				w.Header().Set("Content-Encoding", tc.header)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write(body)
			}))
			defer server.Close()

			client := NewClient(testClientConfig(t))
			resp, err := client.Get(server.URL)
			require.NoError(t, err)
			defer resp.Body.Close()

			data, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Equal(t, historyPayload, string(data))
			assert.Equal(t, acceptEncoding, <-gotAccept)
			assert.Empty(t, resp.Header.Get("Content-Encoding"))
			assert.True(t, resp.Uncompressed)
			assert.Equal(t, int64(-1), resp.ContentLength)
		})
	}
}

func TestCompressionMiddleware_RespectsCallerAcceptEncoding(t *testing.T) {
	gotAccept := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept <- r.Header.Get("Accept-Encoding")
		_, _ = w.Write([]byte("plain"))
	}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := NewClient(testClientConfig(t)).Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "identity", <-gotAccept)
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "plain", string(data))
}

func TestCompressionMiddleware_DoesNotMutateRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := NewClient(testClientConfig(t)).Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, req.Header.Get("Accept-Encoding"))
}

func TestDecompressResponse_Layered(t *testing.T) {
	// gzip applied first, then brotli over it.
	inner := encode(t, "gzip", historyPayload)
	outer := encode(t, "br", string(inner))

	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"gzip, br"}},
		Body:   io.NopCloser(bytes.NewReader(outer)),
	}
	require.NoError(t, DecompressResponse(resp))

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, historyPayload, string(data))
	require.NoError(t, resp.Body.Close())
}

func TestDecompressResponse_Errors(t *testing.T) {
	t.Run("Unsupported encoding", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"zstd"}},
			Body:   io.NopCloser(strings.NewReader("x")),
		}
		err := DecompressResponse(resp)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "zstd")
	})

	t.Run("Invalid gzip header", func(t *testing.T) {
		resp := &http.Response{
			Header: http.Header{"Content-Encoding": []string{"gzip"}},
			Body:   io.NopCloser(strings.NewReader("definitely not gzip")),
		}
		assert.Error(t, DecompressResponse(resp))
	})

	t.Run("Middleware surfaces the failure", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Encoding", "gzip")
			_, _ = w.Write([]byte("broken"))
		}))
		defer server.Close()

		_, err := NewClient(testClientConfig(t)).Get(server.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize response decompression")
	})
}

func TestDecompressResponse_NoEncoding(t *testing.T) {
	assert.NoError(t, DecompressResponse(nil))

	original := io.NopCloser(strings.NewReader("plain"))
	resp := &http.Response{Header: http.Header{}, Body: original}
	require.NoError(t, DecompressResponse(resp))
	assert.Equal(t, original, resp.Body)

	resp = &http.Response{
		Header: http.Header{"Content-Encoding": []string{"identity"}},
		Body:   io.NopCloser(strings.NewReader("plain")),
	}
	require.NoError(t, DecompressResponse(resp))
	data, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "plain", string(data))
}

func TestIsZlibHeader(t *testing.T) {
	zl := encode(t, "deflate", "abc")
	assert.True(t, isZlibHeader(zl[0], zl[1]))
	assert.False(t, isZlibHeader('{', '"'))
}
