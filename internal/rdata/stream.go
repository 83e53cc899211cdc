package rdata

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/rpattn/datastash/internal/domain"
)

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	bzip2Magic = []byte("BZh")
	xzMagic    = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
)

// maxVectorLength bounds a single vector so corrupt input cannot force huge allocations.
const maxVectorLength = 1 << 28

// decompress sniffs the compression wrapper R applied when saving.
func decompress(src io.Reader) (io.Reader, error) {
	br := bufio.NewReader(src)
	head, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}

	switch {
	case bytes.HasPrefix(head, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		return bufio.NewReader(zr), nil
	case bytes.HasPrefix(head, bzip2Magic):
		zr, err := bzip2.NewReader(br, nil)
		if err != nil {
			return nil, fmt.Errorf("open bzip2 stream: %w", err)
		}
		return bufio.NewReader(zr), nil
	case bytes.HasPrefix(head, xzMagic):
		zr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("open xz stream: %w", err)
		}
		return bufio.NewReader(zr), nil
	default:
		return br, nil
	}
}

// xdrReader reads the big-endian primitives of R's XDR serialization.
type xdrReader struct {
	r   io.Reader
	buf [8]byte
}

func (x *xdrReader) int() (int32, error) {
	if _, err := io.ReadFull(x.r, x.buf[:4]); err != nil {
		return 0, unexpected(err)
	}
	return int32(binary.BigEndian.Uint32(x.buf[:4])), nil
}

func (x *xdrReader) float() (float64, error) {
	if _, err := io.ReadFull(x.r, x.buf[:8]); err != nil {
		return 0, unexpected(err)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(x.buf[:8])), nil
}

func (x *xdrReader) bytes(n int) ([]byte, error) {
	if n < 0 || n > maxVectorLength {
		return nil, fmt.Errorf("%w: invalid byte length %d", domain.ErrDecode, n)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(x.r, out); err != nil {
		return nil, unexpected(err)
	}
	return out, nil
}

// length reads a vector length, including the long-vector encoding.
func (x *xdrReader) length() (int, error) {
	n, err := x.int()
	if err != nil {
		return 0, err
	}
	if n == -1 {
		upper, err := x.int()
		if err != nil {
			return 0, err
		}
		lower, err := x.int()
		if err != nil {
			return 0, err
		}
		long := int64(uint32(upper))<<32 | int64(uint32(lower))
		if long > maxVectorLength {
			return 0, fmt.Errorf("%w: vector length %d too large", domain.ErrDecode, long)
		}
		return int(long), nil
	}
	if n < 0 || n > maxVectorLength {
		return 0, fmt.Errorf("%w: invalid vector length %d", domain.ErrDecode, n)
	}
	return int(n), nil
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("%w: %v", domain.ErrDecode, err)
}

// initialCap keeps preallocation modest; vectors grow as data actually arrives.
func initialCap(n int) int {
	if n > 1<<16 {
		return 1 << 16
	}
	return n
}
