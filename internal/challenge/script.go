// Package challenge answers a remote challenge server that sends x86-64
// images and asks questions about how they behave.
package challenge

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/zboralski/xemu/internal/emulator"
	"github.com/zboralski/xemu/internal/loader"
)

var (
	ErrExportMissing = errors.New("export not found")
	ErrUnknownAnswer = errors.New("unknown answer kind")
	ErrEmptyScript   = errors.New("script has no answers")
)

// Answer kinds. export:<name> and js:<expr> are prefixed.
const (
	AnswerStdout   = "stdout"
	AnswerStderr   = "stderr"
	AnswerExitCode = "exit_code"
	exportPrefix   = "export:"
)

// Rule answers any line containing Prompt.
type Rule struct {
	Prompt string `yaml:"prompt"`
	Answer string `yaml:"answer"`
}

// Script drives a session.
type Script struct {
	// ImagePrefix precedes the base64 image on its line. Empty means the
	// whole line is the image.
	ImagePrefix string `yaml:"image_prefix"`
	Rules       []Rule `yaml:"answers"`
	Rounds      int    `yaml:"rounds"`
	FlagPattern string `yaml:"flag_pattern"`

	flag *regexp.Regexp
}

// DefaultScript answers the program output and the win_function address.
func DefaultScript() *Script {
	s := &Script{
		Rules: []Rule{
			{Prompt: "stdout", Answer: AnswerStdout},
			{Prompt: "win_function", Answer: exportPrefix + "win_function"},
		},
		Rounds:      1,
		FlagPattern: `[A-Za-z0-9_]+\{[^}]*\}`,
	}
	if err := s.compile(); err != nil {
		panic(err)
	}
	return s
}

// LoadScript reads a YAML script from path.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScript decodes and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Script) compile() error {
	if len(s.Rules) == 0 {
		return ErrEmptyScript
	}
	for _, r := range s.Rules {
		if r.Prompt == "" {
			return fmt.Errorf("answer %q: empty prompt", r.Answer)
		}
		if err := checkKind(r.Answer); err != nil {
			return err
		}
	}
	if s.Rounds <= 0 {
		s.Rounds = 1
	}
	if s.FlagPattern != "" {
		re, err := regexp.Compile(s.FlagPattern)
		if err != nil {
			return fmt.Errorf("flag_pattern: %w", err)
		}
		s.flag = re
	}
	return nil
}

func checkKind(kind string) error {
	switch kind {
	case AnswerStdout, AnswerStderr, AnswerExitCode:
		return nil
	}
	if name, ok := strings.CutPrefix(kind, exportPrefix); ok && name != "" {
		return nil
	}
	if src, ok := strings.CutPrefix(kind, jsPrefix); ok && strings.TrimSpace(src) != "" {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAnswer, kind)
}

// match returns the first rule whose prompt occurs in line.
func (s *Script) match(line string) (int, bool) {
	for i, r := range s.Rules {
		if strings.Contains(line, r.Prompt) {
			return i, true
		}
	}
	return 0, false
}

// flags returns every flag in line.
func (s *Script) flags(line string) []string {
	if s.flag == nil {
		return nil
	}
	return s.flag.FindAllString(line, -1)
}

// Resolve computes the answer of the given kind. Addresses are hex with a
// 0x prefix, exit codes decimal. "js:<expr>" answers evaluate a JavaScript
// expression over the run.
func Resolve(kind string, exec *emulator.Execution, exports loader.Exports) (string, error) {
	switch kind {
	case AnswerStdout:
		return strings.TrimSuffix(exec.Stdout, "\n"), nil
	case AnswerStderr:
		return strings.TrimSuffix(exec.Stderr, "\n"), nil
	case AnswerExitCode:
		return fmt.Sprint(exec.ExitCode), nil
	}
	if name, ok := strings.CutPrefix(kind, exportPrefix); ok && name != "" {
		addr, ok := exports[name]
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrExportMissing, name)
		}
		return fmt.Sprintf("0x%x", addr), nil
	}
	if src, ok := strings.CutPrefix(kind, jsPrefix); ok && strings.TrimSpace(src) != "" {
		return evalJS(src, exec, exports)
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAnswer, kind)
}
