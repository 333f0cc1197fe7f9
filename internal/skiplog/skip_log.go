// Package skiplog records skipped records in a JSON array document.
package skiplog

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/goccy/go-json"

	storage "github.com/tigerroll/iconium/pkg/batch/adapter/storage"
	port "github.com/tigerroll/iconium/pkg/batch/core/application/port"
	model "github.com/tigerroll/iconium/pkg/batch/core/domain/model"
	"github.com/tigerroll/iconium/pkg/batch/core/job"
	logger "github.com/tigerroll/iconium/pkg/batch/support/util/logger"
)

const contentType = "application/json"

// LocationResolver opens the storage connection serving a location URI.
type LocationResolver interface {
	ResolveLocation(ctx context.Context, uri, preferred string) (storage.StorageConnection, storage.Location, error)
}

// Entry is one element of the skip log.
type Entry struct {
	Phase  port.SkipPhase  `json:"phase"`
	Error  string          `json:"error"`
	Record json.RawMessage `json:"record"`
}

// SkipLog is a job-scoped observer that appends an Entry for every skipped record.
// The document is a pretty-printed array that is terminated on Close.
type SkipLog struct {
	resolver   LocationResolver
	location   string
	storageRef string

	mu      sync.Mutex
	out     io.WriteCloser
	buf     *bufio.Writer
	entries int
}

var (
	_ port.Observer      = (*SkipLog)(nil)
	_ job.ScopedResource = (*SkipLog)(nil)
)

// NewSkipLog creates a skip log written to location.
func NewSkipLog(resolver LocationResolver, location, storageRef string) *SkipLog {
	return &SkipLog{resolver: resolver, location: location, storageRef: storageRef}
}

// Name implements job.ScopedResource.
func (s *SkipLog) Name() string { return "skipLog" }

// Open creates the document and writes the start of the array.
func (s *SkipLog) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out != nil {
		return fmt.Errorf("skip log '%s' is already open", s.location)
	}

	conn, loc, err := s.resolver.ResolveLocation(ctx, s.location, s.storageRef)
	if err != nil {
		return fmt.Errorf("cannot resolve skip log '%s': %w", s.location, err)
	}
	out, err := conn.NewWriter(ctx, loc.Bucket, loc.Object, contentType)
	if err != nil {
		return fmt.Errorf("cannot create skip log '%s': %w", s.location, err)
	}
	s.out = out
	s.buf = bufio.NewWriter(out)
	s.entries = 0
	if _, err := s.buf.WriteString("["); err != nil {
		return err
	}
	logger.Infof("Skipped records are logged to '%s'.", loc)
	return nil
}

// OnSkip implements port.Observer.
func (s *SkipLog) OnSkip(ctx context.Context, phase port.SkipPhase, payload interface{}, err error) {
	entry := Entry{Phase: phase, Error: errorText(err), Record: record(payload)}
	data, marshalErr := json.MarshalIndent(entry, "  ", "  ")
	if marshalErr != nil {
		logger.Warnf("Failed to encode skipped record: %v", marshalErr)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf == nil {
		logger.Warnf("Skip log '%s' is not open, dropping %s skip: %v", s.location, phase, err)
		return
	}
	sep := ",\n  "
	if s.entries == 0 {
		sep = "\n  "
	}
	if _, werr := s.buf.WriteString(sep); werr != nil {
		logger.Warnf("Failed to log skipped record: %v", werr)
		return
	}
	if _, werr := s.buf.Write(data); werr != nil {
		logger.Warnf("Failed to log skipped record: %v", werr)
		return
	}
	if werr := s.buf.Flush(); werr != nil {
		logger.Warnf("Failed to log skipped record: %v", werr)
		return
	}
	s.entries++
}

func (s *SkipLog) OnJobStart(ctx context.Context, jobID string)        {}
func (s *SkipLog) OnChunkRolledBack(ctx context.Context)               {}
func (s *SkipLog) OnJobEnd(ctx context.Context, outcome model.Outcome) {}

// Close terminates the array and closes the document. It may be called more than once.
func (s *SkipLog) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.out == nil {
		return nil
	}
	out, buf := s.out, s.buf
	s.out, s.buf = nil, nil

	_, err := buf.WriteString("\n]\n")
	if err == nil {
		err = buf.Flush()
	}
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to close skip log '%s': %w", s.location, err)
	}
	logger.Infof("Skip log '%s' closed with %d entries.", s.location, s.entries)
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// record returns payload as JSON. Raw JSON is kept verbatim; anything else is encoded.
func record(payload interface{}) json.RawMessage {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null")
	case json.RawMessage:
		if json.Valid(p) {
			return p
		}
		return quoted(string(p))
	case []byte:
		if json.Valid(p) {
			return json.RawMessage(p)
		}
		return quoted(string(p))
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return quoted(fmt.Sprintf("%v", payload))
	}
	return data
}

func quoted(s string) json.RawMessage {
	data, _ := json.Marshal(s)
	return data
}
