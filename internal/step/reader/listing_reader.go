// Package reader streams the elements of a JSON array document one at a time.
package reader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/goccy/go-json"

	storage "github.com/tigerroll/iconium/pkg/batch/adapter/storage"
	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

const (
	ModuleListingReader = "ListingReader"
	// ReadCountKey holds the number of array elements consumed so far.
	ReadCountKey = "reader.read.count"
)

// LocationResolver opens the storage connection serving a location URI.
type LocationResolver interface {
	ResolveLocation(ctx context.Context, uri, preferred string) (storage.StorageConnection, storage.Location, error)
}

// ElementError is a read failure tied to one array element. The chunk step reports
// Element as the skipped payload.
type ElementError struct {
	Element json.RawMessage
	Err     error
}

func (e *ElementError) Error() string        { return e.Err.Error() }
func (e *ElementError) Unwrap() error        { return e.Err }
func (e *ElementError) Payload() interface{} { return e.Element }

var _ port.SkippedItemPayload = (*ElementError)(nil)

type readerState int

const (
	stateClosed readerState = iota
	stateOpen
	stateExhausted
	stateFailed
)

// ListingReader is a forward-only reader over a JSON array of objects. It returns each
// element undecoded and restarts by re-reading and discarding the number of elements
// recorded under ReadCountKey.
type ListingReader struct {
	resolver   LocationResolver
	input      string
	storageRef string

	body    io.ReadCloser
	src     *eofTracker
	decoder *json.Decoder
	state   readerState
	count   int
	err     error
}

var _ port.ItemReader[json.RawMessage] = (*ListingReader)(nil)

// NewListingReader creates a reader for the document at input. storageRef names the
// preferred storage connection for local paths.
func NewListingReader(resolver LocationResolver, input, storageRef string) *ListingReader {
	return &ListingReader{resolver: resolver, input: input, storageRef: storageRef}
}

// Open opens the input, checks that it starts with an array and skips the elements
// consumed by a previous run.
func (r *ListingReader) Open(ctx context.Context, ec model.ExecutionContext) error {
	if r.state != stateClosed {
		return exception.NewBatchError(ModuleListingReader, "reader is already open", nil, false, false)
	}

	conn, loc, err := r.resolver.ResolveLocation(ctx, r.input, r.storageRef)
	if err != nil {
		return exception.NewFormatError(fmt.Sprintf("cannot resolve input '%s'", r.input), err, false)
	}
	body, err := conn.Download(ctx, loc.Bucket, loc.Object)
	if err != nil {
		return exception.NewFormatError(fmt.Sprintf("input '%s' is not readable", r.input), err, false)
	}

	r.body = body
	r.src = &eofTracker{r: bufio.NewReaderSize(body, 64*1024)}
	r.decoder = json.NewDecoder(r.src)
	r.count = 0
	r.err = nil

	tok, err := r.decoder.Token()
	if err != nil || tok != json.Delim('[') {
		_ = r.release()
		if err == nil {
			err = fmt.Errorf("found %v", tok)
		}
		return exception.NewFormatError(fmt.Sprintf("input '%s' is not a JSON array", r.input), err, false)
	}
	r.state = stateOpen
	logger.Infof("ListingReader: opened '%s'.", loc)

	skip, _ := ec.GetInt(ReadCountKey)
	if skip > 0 {
		if err := r.discard(ctx, skip); err != nil {
			_ = r.Close(ctx)
			return err
		}
		logger.Infof("ListingReader: restarted after %d elements.", r.count)
	}
	return nil
}

func (r *ListingReader) discard(ctx context.Context, n int) error {
	for r.count < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.next(); err != nil {
			if errors.Is(err, port.ErrNoMoreItems) {
				logger.Warnf("ListingReader: input ended after %d elements while restarting at %d.", r.count, n)
				return nil
			}
			return err
		}
	}
	return nil
}

// Read returns the next object element, or port.ErrNoMoreItems at the end of the array.
func (r *ListingReader) Read(ctx context.Context) (json.RawMessage, error) {
	switch r.state {
	case stateClosed:
		return nil, exception.NewNotOpenError()
	case stateExhausted:
		return nil, port.ErrNoMoreItems
	case stateFailed:
		return nil, r.err
	}

	raw, err := r.next()
	if err != nil {
		return nil, err
	}
	if first := firstByte(raw); first != '{' {
		return nil, &ElementError{
			Element: raw,
			Err:     exception.NewFormatError(fmt.Sprintf("element %d is not an object", r.count), nil, true),
		}
	}
	return raw, nil
}

// next decodes one element, counting it as consumed. Input that ends early is the
// end of the array; any other syntax error leaves the reader failed.
func (r *ListingReader) next() (json.RawMessage, error) {
	switch r.state {
	case stateExhausted:
		return nil, port.ErrNoMoreItems
	case stateFailed:
		return nil, r.err
	}

	if !r.decoder.More() {
		tok, err := r.decoder.Token()
		switch {
		case err == nil && tok == json.Delim(']'):
			r.state = stateExhausted
			return nil, port.ErrNoMoreItems
		case err != nil && r.atEnd():
			r.state = stateExhausted
			logger.Warnf("ListingReader: array in '%s' is not terminated after %d elements, treating as end of input: %v", r.input, r.count, err)
			return nil, port.ErrNoMoreItems
		case err == nil:
			err = fmt.Errorf("unexpected %v", tok)
		}
		return nil, r.fail(err)
	}

	if err := r.checkSeparator(); err != nil {
		return nil, r.fail(err)
	}

	var raw json.RawMessage
	if err := r.decoder.Decode(&raw); err != nil {
		if r.truncated(err) {
			r.state = stateExhausted
			logger.Warnf("ListingReader: input '%s' ends inside element %d, treating as end of input: %v", r.input, r.count+1, err)
			return nil, port.ErrNoMoreItems
		}
		return nil, r.fail(err)
	}
	if !json.Valid(raw) {
		return nil, r.fail(fmt.Errorf("element %d is not valid JSON: %s", r.count+1, clip(raw)))
	}
	r.count++
	return raw, nil
}

// fail records a fatal syntax error; every later read returns it.
func (r *ListingReader) fail(err error) error {
	r.state = stateFailed
	r.err = exception.NewFormatError(fmt.Sprintf("unrecoverable reader error after %d elements", r.count), err, false)
	return r.err
}

// checkSeparator looks at the bytes ahead of the next element: one comma after the
// first element, then the first byte of a JSON value. The decoder skips stray bytes
// on its own, so they are rejected here.
func (r *ListingReader) checkSeparator() error {
	ahead := byteReader(r.decoder.Buffered())
	c, ok := nextNonSpace(ahead)
	if !ok {
		return nil
	}
	if r.count > 0 {
		if c != ',' {
			return fmt.Errorf("invalid character %q after element %d", c, r.count)
		}
		if c, ok = nextNonSpace(ahead); !ok {
			return nil
		}
	}
	if !strings.ContainsRune(valueStart, rune(c)) {
		return fmt.Errorf("invalid character %q looking for element %d", c, r.count+1)
	}
	return nil
}

const valueStart = `{["-0123456789tfn`

// atEnd reports whether the input has been drained and nothing but whitespace is left.
func (r *ListingReader) atEnd() bool {
	if !r.src.eof {
		return false
	}
	_, found := nextNonSpace(byteReader(r.decoder.Buffered()))
	return !found
}

// truncated reports whether err was caused by the input ending mid-element.
func (r *ListingReader) truncated(err error) bool {
	if !r.src.eof {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end") || strings.Contains(msg, "EOF")
}

// Close releases the input. It may be called more than once.
func (r *ListingReader) Close(ctx context.Context) error {
	if r.state == stateClosed {
		return nil
	}
	r.state = stateClosed
	return r.release()
}

func (r *ListingReader) release() error {
	body := r.body
	r.body, r.src, r.decoder = nil, nil, nil
	if body == nil {
		return nil
	}
	if err := body.Close(); err != nil {
		return fmt.Errorf("failed to close input '%s': %w", r.input, err)
	}
	return nil
}

// SetExecutionContext repositions an open reader at the count held by ec. Only
// forward moves are possible.
func (r *ListingReader) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	n, _ := ec.GetInt(ReadCountKey)
	if r.state == stateClosed {
		return exception.NewNotOpenError()
	}
	if n < r.count {
		return exception.NewBatchError(ModuleListingReader,
			fmt.Sprintf("cannot move back from element %d to %d", r.count, n), nil, false, false)
	}
	return r.discard(ctx, n)
}

// GetExecutionContext reports the number of elements consumed.
func (r *ListingReader) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	ec := model.NewExecutionContext()
	ec.Put(ReadCountKey, r.count)
	return ec, nil
}

func byteReader(rd io.Reader) io.ByteReader {
	if br, ok := rd.(io.ByteReader); ok {
		return br
	}
	return bufio.NewReaderSize(rd, 16)
}

func nextNonSpace(br io.ByteReader) (byte, bool) {
	for {
		c, err := br.ReadByte()
		if err != nil {
			return 0, false
		}
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c, true
	}
}

// clip shortens raw for error text without splitting a UTF-8 sequence.
func clip(raw json.RawMessage) string {
	const max = 80
	if len(raw) <= max {
		return string(raw)
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(raw[cut]) {
		cut--
	}
	return string(raw[:cut]) + "..."
}

func firstByte(raw json.RawMessage) byte {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// eofTracker remembers whether the underlying reader has been drained.
type eofTracker struct {
	r   io.Reader
	eof bool
}

func (t *eofTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err == io.EOF {
		t.eof = true
	}
	return n, err
}
