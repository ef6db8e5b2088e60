package session

import (
	"context"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/arach/fabric/internal/logging"
	"github.com/arach/fabric/internal/provider"
	"github.com/arach/fabric/internal/sandbox"
)

// PromptCommand builds the shell command that runs the agent against cfg.
func PromptCommand(agentCommand string, cfg provider.Config, prompt string) string {
	var b strings.Builder
	if env := provider.EnvPrefix(cfg); env != "" {
		b.WriteString("env ")
		b.WriteString(env)
		b.WriteByte(' ')
	}
	b.WriteString(agentCommand)
	b.WriteByte(' ')
	b.WriteString(shellquote.Join(prompt))
	return b.String()
}

// RunPrompt runs the agent command with prompt in the active sandbox. When
// the output shows the provider is rate limited, the session switches to
// the next unused fallback provider and retries; each fallback is tried at
// most once over the life of the session.
func (s *Session) RunPrompt(ctx context.Context, prompt string) (*sandbox.ExecResult, error) {
	res, err := s.Exec(ctx, PromptCommand(s.opts.AgentCommand, s.Provider(), prompt))
	if err != nil {
		return nil, err
	}

	for provider.IsRateLimited(res.Stdout + "\n" + res.Stderr) {
		next, ok := s.advanceProvider()
		if !ok {
			break
		}
		logging.Warn("provider rate limited, switching", "session", s.opts.ID, "provider", next.String())
		s.emit(EventProviderSwitched, nil)

		res, err = s.Exec(ctx, PromptCommand(s.opts.AgentCommand, next, prompt))
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// advanceProvider makes the next unused fallback current.
func (s *Session) advanceProvider() (provider.Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextFallback >= len(s.opts.Fallbacks) {
		return provider.Config{}, false
	}
	s.provider = s.opts.Fallbacks[s.nextFallback]
	s.nextFallback++
	return s.provider, true
}
