package jobstore

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/replicateio/tbridge/internal/telemetry"
)

// Config describes how to invoke the job-store subprocess.
type Config struct {
	// Binary is the executable that speaks the marshalled-dictionary
	// protocol on stdin/stdout, e.g. a "p4 -G" equivalent wrapper.
	Binary string
	Dir    string
	Env    []string
	Port   string
	User   string
	Client string

	Timeout time.Duration
}

// Client is the job-side adapter: a subprocess-oriented client with no
// shared mutable state other than the encoding mode it negotiates on
// first use. It never decides replication policy.
type Client struct {
	cfg      Config
	encoding Encoding
	toggled  bool
}

const defaultTimeout = 30 * time.Second

var jobstoreTracer = otel.Tracer("github.com/replicateio/tbridge/jobstore")

// NewClient creates a client and negotiates the server's Unicode mode
// by probing a harmless command; a server that rejects the probe
// under UTF-8 is assumed to run in legacy/Latin-1 mode.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	c := &Client{cfg: cfg, encoding: EncodingUnicode}
	if _, err := c.run(ctx, []string{"info"}, nil); err != nil {
		if isUnicodeRelatedFailure(err) {
			c.encoding = EncodingLegacy
			c.toggled = true
			if _, err2 := c.run(ctx, []string{"info"}, nil); err2 != nil {
				return nil, fmt.Errorf("jobstore: encoding negotiation failed in both modes: %w", err2)
			}
		} else {
			return nil, fmt.Errorf("jobstore: connect: %w", err)
		}
	}
	return c, nil
}

// run executes one subprocess invocation, feeding input (if non-nil)
// as an encoded record on stdin and returning the decoded record(s)
// read from stdout, joined as their raw text for the caller to parse
// further (commands vary in whether they emit one dict or a stream of
// them).
func (c *Client) run(ctx context.Context, args []string, input record) (string, error) {
	ctx, span := jobstoreTracer.Start(ctx, "jobstore.run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.StringSlice("jobstore.args", args)),
	)
	defer span.End()

	timeout := c.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fullArgs := c.globalArgs()
	fullArgs = append(fullArgs, args...)
	cmd := exec.CommandContext(ctx, c.cfg.Binary, fullArgs...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = c.cfg.Env

	if input != nil {
		var buf bytes.Buffer
		if err := encodeRecord(&buf, input); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", fmt.Errorf("jobstore: encode input: %w", err)
		}
		cmd.Stdin = &buf
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	waitStart := time.Now()
	err := cmd.Run()
	telemetry.RecordLockWait(ctx, float64(time.Since(waitStart).Milliseconds()))
	if err != nil {
		cmdErr := &CommandError{Args: fullArgs, Stderr: stderr.String()}
		span.RecordError(cmdErr)
		span.SetStatus(codes.Error, cmdErr.Error())
		return "", cmdErr
	}
	return stdout.String(), nil
}

// globalArgs builds the connection flags common to every invocation.
func (c *Client) globalArgs() []string {
	var args []string
	if c.cfg.Port != "" {
		args = append(args, "-p", c.cfg.Port)
	}
	if c.cfg.User != "" {
		args = append(args, "-u", c.cfg.User)
	}
	if c.cfg.Client != "" {
		args = append(args, "-c", c.cfg.Client)
	}
	if c.encoding == EncodingUnicode {
		args = append(args, "-C", "utf8")
	}
	return args
}

// isUnicodeRelatedFailure recognises the subset of command failures
// that indicate a Unicode/charset mismatch rather than a genuine
// error, the only case the client recovers from locally by toggling
// encoding once; a second failure after toggling is fatal.
func isUnicodeRelatedFailure(err error) bool {
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	msg := strings.ToLower(cmdErr.Stderr)
	return strings.Contains(msg, "unicode") || strings.Contains(msg, "charset") || strings.Contains(msg, "utf8")
}

func decodeAllRecords(raw string) ([]record, error) {
	r := bufio.NewReader(strings.NewReader(raw))
	var recs []record
	for {
		rec, err := decodeRecord(r)
		if err != nil {
			return recs, err
		}
		if len(rec) == 0 {
			break
		}
		recs = append(recs, rec)
	}
	return recs, nil
}
