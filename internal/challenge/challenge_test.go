package challenge

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zboralski/xemu/internal/emulator"
	"github.com/zboralski/xemu/internal/loader"
	"github.com/zboralski/xemu/internal/testimage"
)

const winAddr = 0x401337

// helloImage writes "A" and exports win_function.
func helloImage() []byte {
	code := testimage.Concat(
		[]byte{0x6A, 0x41},       // push 0x41
		[]byte{0x48, 0x89, 0xE6}, // mov rsi, rsp
		testimage.MovImm64(2, 1), // mov rdx, 1
		testimage.MovImm64(7, 1), // mov rdi, 1
		testimage.MovImm64(0, 1), // mov rax, 1
		testimage.Syscall(),
		testimage.Exit(0),
	)
	return testimage.ELF{
		Code:    code,
		Symbols: []testimage.Symbol{{Name: "win_function", Value: winAddr}},
	}.Bytes()
}

func TestParseScript(t *testing.T) {
	s, err := ParseScript([]byte(`
image_prefix: "binary:"
flag_pattern: 'CTF\{[^}]*\}'
answers:
  - prompt: "What is the exit code"
    answer: exit_code
  - prompt: "win"
    answer: export:win_function
`))
	require.NoError(t, err)
	assert.Equal(t, "binary:", s.ImagePrefix)
	assert.Equal(t, 1, s.Rounds)
	require.Len(t, s.Rules, 2)
	assert.Equal(t, Rule{Prompt: "win", Answer: "export:win_function"}, s.Rules[1])
	assert.Equal(t, []string{"CTF{x}"}, s.flags("got CTF{x} !"))

	_, err = ParseScript([]byte("rounds: 2\n"))
	assert.ErrorIs(t, err, ErrEmptyScript)

	_, err = ParseScript([]byte("answers: [{prompt: a, answer: registers}]\n"))
	assert.ErrorIs(t, err, ErrUnknownAnswer)

	_, err = ParseScript([]byte("answers: [{prompt: a, answer: 'export:'}]\n"))
	assert.ErrorIs(t, err, ErrUnknownAnswer)

	_, err = ParseScript([]byte("flag_pattern: '('\nanswers: [{prompt: a, answer: stdout}]\n"))
	assert.Error(t, err)

	_, err = ParseScript([]byte("answers: {"))
	assert.Error(t, err)
}

func TestDefaultScript(t *testing.T) {
	s := DefaultScript()
	i, ok := s.match("address of win_function?")
	require.True(t, ok)
	assert.Equal(t, "export:win_function", s.Rules[i].Answer)

	_, ok = s.match("hello")
	assert.False(t, ok)
}

func TestResolve(t *testing.T) {
	exec := &emulator.Execution{ExitCode: 42, Stdout: "out\n", Stderr: "err"}
	exports := loader.Exports{"win_function": 0x401000}

	tests := []struct {
		kind string
		want string
	}{
		{AnswerStdout, "out"},
		{AnswerStderr, "err"},
		{AnswerExitCode, "42"},
		{"export:win_function", "0x401000"},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.kind, exec, exports)
		require.NoError(t, err, tt.kind)
		assert.Equal(t, tt.want, got, tt.kind)
	}

	_, err := Resolve("export:main", exec, exports)
	assert.ErrorIs(t, err, ErrExportMissing)

	_, err = Resolve("bogus", exec, exports)
	assert.ErrorIs(t, err, ErrUnknownAnswer)
}

// serve plays one scripted server session on conn and reports the answers
// it received.
func serve(conn net.Conn, rounds int, img []byte) <-chan []string {
	out := make(chan []string, 1)
	go func() {
		defer conn.Close()
		r := bufio.NewReader(conn)
		var answers []string
		ask := func(prompt string) bool {
			if _, err := fmt.Fprintf(conn, "%s\n", prompt); err != nil {
				return false
			}
			line, err := r.ReadString('\n')
			if err != nil {
				return false
			}
			answers = append(answers, strings.TrimSuffix(line, "\n"))
			return true
		}

		fmt.Fprintf(conn, "welcome, solve %d rounds\n", rounds)
		for i := 0; i < rounds; i++ {
			fmt.Fprintf(conn, "%s\n", base64.StdEncoding.EncodeToString(img))
			if !ask("what did it print to stdout?") || !ask("where is win_function?") {
				break
			}
		}
		fmt.Fprintf(conn, "well done: flag{emulated}\n")
		out <- answers
	}()
	return out
}

func TestSession(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	answers := serve(server, 2, helloImage())

	s := DefaultScript()
	s.Rounds = 2
	res, err := (&Client{}).Session(context.Background(), client, s)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, []string{"flag{emulated}"}, res.Flags)
	assert.NotEmpty(t, res.Session)
	assert.Equal(t, []string{"A", "0x401337", "A", "0x401337"}, <-answers)
}

func TestSessionImagePrefix(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		defer server.Close()
		r := bufio.NewReader(server)
		fmt.Fprintf(server, "binary: %s\n", base64.StdEncoding.EncodeToString(helloImage()))
		fmt.Fprintf(server, "exit code?\n")
		line, _ := r.ReadString('\n')
		fmt.Fprintf(server, "you said %s", line)
	}()

	s, err := ParseScript([]byte(`
image_prefix: "binary:"
flag_pattern: 'said \d+'
answers:
  - prompt: "exit code"
    answer: exit_code
`))
	require.NoError(t, err)
	res, err := (&Client{}).Session(context.Background(), client, s)
	require.NoError(t, err)
	assert.Equal(t, []string{"said 0"}, res.Flags)
}

func TestSessionPromptWithoutNewline(t *testing.T) {
	old := promptIdle
	promptIdle = 20 * time.Millisecond
	defer func() { promptIdle = old }()

	client, server := net.Pipe()
	defer client.Close()
	answers := make(chan []string, 1)
	go func() {
		defer server.Close()
		r := bufio.NewReader(server)
		var got []string
		fmt.Fprintf(server, "%s\n", base64.StdEncoding.EncodeToString(helloImage()))
		for _, prompt := range []string{"stdout? ", "win_function> "} {
			fmt.Fprint(server, prompt)
			line, err := r.ReadString('\n')
			if err != nil {
				break
			}
			got = append(got, strings.TrimSuffix(line, "\n"))
		}
		fmt.Fprint(server, "flag{no_newline}")
		answers <- got
	}()

	res, err := (&Client{}).Session(context.Background(), client, DefaultScript())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rounds)
	assert.Equal(t, []string{"flag{no_newline}"}, res.Flags)
	assert.Equal(t, []string{"A", "0x401337"}, <-answers)
}

func TestSessionExportMissing(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	img := testimage.ELF{Code: testimage.Exit(0)}.Bytes()
	serve(server, 1, img)

	_, err := (&Client{}).Session(context.Background(), client, DefaultScript())
	assert.ErrorIs(t, err, ErrExportMissing)
}

func TestSessionEmulationFails(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	img := testimage.ELF{Code: []byte{0x90}}.Bytes()
	serve(server, 1, img)

	_, err := (&Client{}).Session(context.Background(), client, DefaultScript())
	var cpuErr *emulator.CPUError
	assert.ErrorAs(t, err, &cpuErr)
}

func TestSessionIncomplete(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	go func() {
		fmt.Fprintf(server, "maintenance, try later\n")
		server.Close()
	}()

	res, err := (&Client{}).Session(context.Background(), client, DefaultScript())
	assert.ErrorIs(t, err, ErrIncomplete)
	assert.Equal(t, 0, res.Rounds)
}

func TestSessionCanceled(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := (&Client{}).Session(ctx, client, DefaultScript())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSolveDial(t *testing.T) {
	client, server := net.Pipe()
	serve(server, 1, helloImage())

	var dialed string
	c := &Client{Dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
		dialed = network + "://" + addr
		return client, nil
	}}
	res, err := c.Solve(context.Background(), "challenge.example:1337", DefaultScript())
	require.NoError(t, err)
	assert.Equal(t, "tcp://challenge.example:1337", dialed)
	assert.Equal(t, 1, res.Rounds)
}

func TestResolveJS(t *testing.T) {
	exec := &emulator.Execution{ExitCode: 7, Stdout: "hello"}
	exports := loader.Exports{"win_function": 0x401000}

	tests := []struct {
		src  string
		want string
	}{
		{"stdout.toUpperCase()", "HELLO"},
		{"exit_code * 6", "42"},
		{"hex(exports.win_function + 0x10)", "0x401010"},
		{"stdout.length + ':' + stdout", "5:hello"},
	}
	for _, tt := range tests {
		got, err := Resolve("js:"+tt.src, exec, exports)
		require.NoError(t, err, tt.src)
		assert.Equal(t, tt.want, got, tt.src)
	}

	_, err := Resolve("js:hex(exports.main)", exec, exports)
	assert.Error(t, err)

	_, err = Resolve("js:undefined", exec, exports)
	assert.Error(t, err)

	_, err = Resolve("js:(", exec, exports)
	assert.Error(t, err)

	_, err = ParseScript([]byte("answers: [{prompt: a, answer: 'js: '}]\n"))
	assert.ErrorIs(t, err, ErrUnknownAnswer)
}

func TestResolveJSTimeout(t *testing.T) {
	old := jsTimeout
	jsTimeout = 20 * time.Millisecond
	defer func() { jsTimeout = old }()

	_, err := Resolve("js:for(;;){}", &emulator.Execution{}, nil)
	assert.Error(t, err)
}
