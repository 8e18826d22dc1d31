package challenge

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/zboralski/xemu/internal/emulator"
	"github.com/zboralski/xemu/internal/loader"
	glog "github.com/zboralski/xemu/internal/log"
)

// ErrIncomplete is returned when the server closes the connection before
// the scripted number of rounds was answered.
var ErrIncomplete = errors.New("challenge incomplete")

// promptIdle is how long the server may pause mid-line before the partial
// line is tried as a prompt.
var promptIdle = 250 * time.Millisecond

// DialFunc opens a connection to the challenge server.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Client solves challenges. The zero value dials through the proxy named
// by ALL_PROXY, or directly when unset.
type Client struct {
	Dial    DialFunc
	Options emulator.Options
}

// Result summarizes a session.
type Result struct {
	Session string
	Rounds  int
	Flags   []string
}

// Solve dials addr and runs the script over the connection.
func (c *Client) Solve(ctx context.Context, addr string, s *Script) (*Result, error) {
	dial := c.Dial
	if dial == nil {
		dial = proxy.Dial
	}
	conn, err := dial(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()
	return c.Session(ctx, conn, s)
}

// Session runs the script over an established connection. It returns when
// the server closes the connection, a round fails or ctx is done.
func (c *Client) Session(ctx context.Context, conn net.Conn, s *Script) (*Result, error) {
	res := &Result{Session: uuid.NewString()}
	var log *glog.Logger
	if glog.L != nil {
		log = glog.L.WithCategory("challenge")
		log.Info("session", zap.String("session", res.Session), zap.String("remote", remote(conn)))
	}

	// Unblock pending reads once ctx is done.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	sess := &session{client: c, script: s, conn: conn, res: res, log: log}
	r := bufio.NewReader(conn)
	var pending string
	for {
		conn.SetReadDeadline(time.Now().Add(promptIdle))
		chunk, err := r.ReadString('\n')
		pending += chunk
		if err == nil {
			line := pending
			pending = ""
			if perr := sess.line(ctx, strings.TrimRight(line, "\r\n")); perr != nil {
				return res, perr
			}
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			// The server may be waiting on a prompt with no newline.
			if pending != "" {
				ok, perr := sess.partial(pending)
				if perr != nil {
					return res, perr
				}
				if ok {
					pending = ""
				}
			}
			continue
		}
		if !errors.Is(err, io.EOF) {
			return res, err
		}
		if pending != "" {
			if perr := sess.line(ctx, strings.TrimRight(pending, "\r\n")); perr != nil {
				return res, perr
			}
		}
		break
	}

	if res.Rounds < s.Rounds {
		return res, fmt.Errorf("%w: %d of %d rounds", ErrIncomplete, res.Rounds, s.Rounds)
	}
	return res, nil
}

type session struct {
	client *Client
	script *Script
	conn   net.Conn
	res    *Result
	log    *glog.Logger

	// Current round, nil while waiting for an image.
	exec     *emulator.Execution
	exports  loader.Exports
	answered []bool
}

func (s *session) line(ctx context.Context, line string) error {
	s.res.Flags = append(s.res.Flags, s.script.flags(line)...)

	if s.exec == nil {
		if s.res.Rounds >= s.script.Rounds {
			return nil
		}
		img, ok, err := s.image(line)
		if err != nil || !ok {
			return err
		}
		return s.load(ctx, img)
	}

	_, err := s.prompt(line)
	return err
}

// partial answers text received without a trailing newline, once the
// server stopped sending. It reports whether text was consumed.
func (s *session) partial(text string) (bool, error) {
	if s.exec == nil {
		return false, nil
	}
	ok, err := s.prompt(text)
	if ok {
		s.res.Flags = append(s.res.Flags, s.script.flags(text)...)
	}
	return ok, err
}

// prompt answers line with the first matching rule.
func (s *session) prompt(line string) (bool, error) {
	i, ok := s.script.match(line)
	if !ok {
		return false, nil
	}
	rule := s.script.Rules[i]
	answer, err := Resolve(rule.Answer, s.exec, s.exports)
	if err != nil {
		return true, fmt.Errorf("round %d: %w", s.res.Rounds+1, err)
	}
	if _, err := io.WriteString(s.conn, answer+"\n"); err != nil {
		return true, err
	}
	if s.log != nil {
		s.log.Debug("answer", glog.Fn(rule.Answer), zap.String("prompt", rule.Prompt), zap.String("answer", answer))
	}

	s.answered[i] = true
	for _, done := range s.answered {
		if !done {
			return true, nil
		}
	}
	s.res.Rounds++
	s.exec = nil
	return true, nil
}

// image extracts the image carried by line. Without a prefix, lines that do
// not decode to a known binary format are ignored.
func (s *session) image(line string) ([]byte, bool, error) {
	payload := strings.TrimSpace(line)
	if p := s.script.ImagePrefix; p != "" {
		rest, ok := strings.CutPrefix(payload, p)
		if !ok {
			return nil, false, nil
		}
		img, err := base64.StdEncoding.DecodeString(strings.TrimSpace(rest))
		if err != nil {
			return nil, false, fmt.Errorf("round %d: decode image: %w", s.res.Rounds+1, err)
		}
		return img, true, nil
	}
	img, err := base64.StdEncoding.DecodeString(payload)
	if err != nil || loader.Detect(img) == loader.FormatUnknown {
		return nil, false, nil
	}
	return img, true, nil
}

func (s *session) load(ctx context.Context, img []byte) error {
	round := s.res.Rounds + 1
	exec, err := emulator.ExecuteBinaryContext(ctx, img, s.client.Options)
	if err != nil {
		return fmt.Errorf("round %d: %w", round, err)
	}
	exports, err := loader.ResolveExports(img)
	if err != nil {
		return fmt.Errorf("round %d: %w", round, err)
	}
	if s.log != nil {
		s.log.Info("round",
			zap.Int("round", round),
			zap.Int("size", len(img)),
			zap.Uint64("exit", exec.ExitCode),
			zap.Int("exports", len(exports)),
		)
	}
	s.exec = exec
	s.exports = exports
	s.answered = make([]bool, len(s.script.Rules))
	return nil
}

func remote(conn net.Conn) string {
	if a := conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
