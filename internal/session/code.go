package session

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/kballard/go-shellquote"

	"github.com/arach/fabric/internal/errors"
	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/sandbox"
)

// DefaultLanguage is used when RunCode is called without a language.
const DefaultLanguage = "python"

type interpreter struct {
	command []string
	ext     string
}

var interpreters = map[string]interpreter{
	"python":     {[]string{"python3"}, ".py"},
	"python3":    {[]string{"python3"}, ".py"},
	"javascript": {[]string{"node"}, ".js"},
	"js":         {[]string{"node"}, ".js"},
	"node":       {[]string{"node"}, ".js"},
	"typescript": {[]string{"npx", "tsx"}, ".ts"},
	"ts":         {[]string{"npx", "tsx"}, ".ts"},
	"bash":       {[]string{"bash"}, ".sh"},
	"sh":         {[]string{"bash"}, ".sh"},
	"ruby":       {[]string{"ruby"}, ".rb"},
	"go":         {[]string{"go", "run"}, ".go"},
}

// InterpreterCommand returns the command that runs a file of language at
// path.
func InterpreterCommand(language, file string) (string, error) {
	in, ok := interpreters[strings.ToLower(language)]
	if !ok {
		return "", errors.ValidationError(fmt.Sprintf("unsupported language %q", language))
	}
	return shellquote.Join(append(append([]string{}, in.command...), file)...), nil
}

// RunCode runs a code snippet. Sandboxes that run code natively are used
// directly; otherwise the snippet is written under the session's code
// directory and executed with the language's interpreter.
func (s *Session) RunCode(ctx context.Context, code, language string) (*sandbox.CodeResult, error) {
	sb, err := s.active()
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = DefaultLanguage
	}

	if cr, ok := sandbox.AsCodeRunner(sb); ok {
		return cr.RunCode(ctx, code, language)
	}

	in, ok := interpreters[strings.ToLower(language)]
	if !ok {
		return nil, errors.ValidationError(fmt.Sprintf("unsupported language %q", language))
	}

	file := path.Join(s.opts.CodeDir, "snippet-"+uuid.NewString()[:8]+in.ext)
	if err := sb.WriteFile(ctx, file, []byte(code)); err != nil {
		return nil, err
	}

	command, _ := InterpreterCommand(language, file)
	logging.Debug("running code via interpreter", "session", s.opts.ID, "command", command)

	res, err := sb.Exec(ctx, command)
	if err != nil {
		return nil, err
	}

	out := &sandbox.CodeResult{Output: res.Stdout}
	if res.ExitCode != 0 {
		out.Error = res.Stderr
		if out.Error == "" {
			out.Error = fmt.Sprintf("exit status %d", res.ExitCode)
		}
	}
	return out, nil
}
