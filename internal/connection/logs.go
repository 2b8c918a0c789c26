package connection

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ouroboros8/captain/internal/nodeclient"
)

// LogEntry is one record of output from an instance, tagged with which
// stream it came from (StreamUnknown in one-shot mode, which never sees
// multiplex framing — see LogStream.Next).
type LogEntry struct {
	Stream  nodeclient.StreamKind
	Message string
}

// LogStream is the Log Reader (spec.md §4.G): a lazy, pull-based sequence of
// records over one instance's output, in either of the two documented
// modes. the two modes are not the same shape of work — follow mode decodes
// the daemon's framed multiplex stream one frame at a time (one record per
// frame, exactly spec.md §4.A); one-shot mode already has the whole blob
// in hand from the daemon and just splits it on "\n" — so LogStream branches
// on follow once at construction rather than forcing both through a shared
// line-buffering path.
type LogStream struct {
	raw    io.Closer
	follow bool

	frames *nodeclient.FrameReader // follow mode only

	lines  []string // one-shot mode only: the blob pre-split into "line\n" records
	loaded bool
	next   int
}

func newLogStream(raw io.ReadCloser, follow bool) *LogStream {
	stream := &LogStream{raw: raw, follow: follow}
	if follow {
		stream.frames = nodeclient.NewFrameReader(raw)
	}
	return stream
}

// Next returns the next record, or io.EOF once the stream is exhausted.
func (s *LogStream) Next() (LogEntry, error) {
	if s.follow {
		frame, err := s.frames.Next()
		if err != nil {
			return LogEntry{}, err
		}
		return LogEntry{Stream: frame.Stream, Message: string(frame.Payload)}, nil
	}

	if !s.loaded {
		body, err := io.ReadAll(s.raw)
		if err != nil {
			return LogEntry{}, err
		}
		s.lines = splitLogLines(string(body))
		s.loaded = true
	}
	if s.next >= len(s.lines) {
		return LogEntry{}, io.EOF
	}
	line := s.lines[s.next]
	s.next++
	return LogEntry{Stream: nodeclient.StreamUnknown, Message: line}, nil
}

// Close releases the underlying HTTP response body. always safe to call,
// including after Next has already returned io.EOF.
func (s *LogStream) Close() error {
	return s.raw.Close()
}

// splitLogLines implements spec.md §4.A/§4.G's one-shot rule literally:
// split the blob on "\n", and emit each line as a record terminated with
// "\n" — the trailing empty element left by a blob that ends in "\n" is
// dropped rather than emitted as an empty record.
func splitLogLines(body string) []string {
	if body == "" {
		return nil
	}
	parts := strings.Split(body, "\n")
	if parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	lines := make([]string, len(parts))
	for i, part := range parts {
		lines[i] = part + "\n"
	}
	return lines
}

// GetLogs locates the named instance anywhere in the fleet and returns a
// LogStream over its output. when follow is true the stream stays open
// until the caller cancels ctx or the container exits; when false the
// daemon has already buffered the whole blob and Next drains it to io.EOF.
// spec.md §4.G.
func (conn *Connection) GetLogs(ctx context.Context, instanceID string, follow bool) (*LogStream, error) {
	instances, err := conn.GetInstances(ctx, "")
	if err != nil {
		return nil, err
	}

	var node string
	found := false
	for _, inst := range instances {
		if inst.ID == instanceID {
			node = inst.Node
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchInstance, instanceID)
	}

	client, err := conn.nodeClient(node)
	if err != nil {
		return nil, err
	}

	raw, err := client.Logs(ctx, instanceID, follow)
	if err != nil {
		return nil, err
	}
	return newLogStream(raw, follow), nil
}
