package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// acceptEncoding is advertised on every API request that does not set its own.
const acceptEncoding = "br, gzip, deflate"

var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaderPool = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
	emptyReader = strings.NewReader("")
)

// CompressionMiddleware negotiates compressed responses and hands callers a
// plain body. The analysis service compresses its history payloads, which grow
// with every stored scan.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport, or http.DefaultTransport when nil.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		// RoundTrippers must not mutate the caller's request.
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := DecompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// decodedBody closes the decoder chain and the original body together and
// returns pooled readers on Close.
type decodedBody struct {
	io.Reader
	original io.Closer
	release  []func()
}

func (b *decodedBody) Close() error {
	for _, fn := range b.release {
		fn()
	}
	b.release = nil
	return b.original.Close()
}

// DecompressResponse replaces resp.Body with a decoding reader for every
// encoding listed in Content-Encoding, applied in reverse. On success the
// encoding and length headers are removed and resp.Uncompressed is set. On
// error the body may be partially consumed and must be discarded.
func DecompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}

	var encodings []string
	for _, value := range resp.Header.Values("Content-Encoding") {
		for _, part := range strings.Split(value, ",") {
			if enc := strings.ToLower(strings.TrimSpace(part)); enc != "" {
				encodings = append(encodings, enc)
			}
		}
	}
	if len(encodings) == 0 {
		return nil
	}

	body := &decodedBody{Reader: resp.Body, original: resp.Body}
	for i := len(encodings) - 1; i >= 0; i-- {
		switch encodings[i] {
		case "identity":
			continue
		case "gzip", "x-gzip":
			zr := gzipReaderPool.Get().(*gzip.Reader)
			if err := zr.Reset(body.Reader); err != nil {
				gzipReaderPool.Put(zr)
				body.releaseAll()
				return fmt.Errorf("gzip: %w", err)
			}
			body.Reader = zr
			body.release = append(body.release, func() {
				_ = zr.Close()
				_ = zr.Reset(emptyReader)
				gzipReaderPool.Put(zr)
			})
		case "br":
			br := brotliReaderPool.Get().(*brotli.Reader)
			if err := br.Reset(body.Reader); err != nil {
				brotliReaderPool.Put(br)
				body.releaseAll()
				return fmt.Errorf("brotli: %w", err)
			}
			body.Reader = br
			body.release = append(body.release, func() {
				_ = br.Reset(emptyReader)
				brotliReaderPool.Put(br)
			})
		case "deflate":
			dr, err := newDeflateReader(body.Reader)
			if err != nil {
				body.releaseAll()
				return fmt.Errorf("deflate: %w", err)
			}
			body.Reader = dr
			body.release = append(body.release, func() { _ = dr.Close() })
		default:
			body.releaseAll()
			return fmt.Errorf("unsupported content encoding %q", encodings[i])
		}
	}

	resp.Body = body
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

func (b *decodedBody) releaseAll() {
	for _, fn := range b.release {
		fn()
	}
	b.release = nil
}

// newDeflateReader accepts both zlib-wrapped and raw deflate streams. Servers
// disagree on what "deflate" means, so the first two bytes decide.
func newDeflateReader(r io.Reader) (io.ReadCloser, error) {
	buffered := bufio.NewReader(r)
	header, err := buffered.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(header) == 2 && isZlibHeader(header[0], header[1]) {
		return zlib.NewReader(buffered)
	}
	return flate.NewReader(buffered), nil
}

// isZlibHeader checks the CMF/FLG pair from RFC 1950.
func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
