package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// scriptedCompleter answers prompts by matching a substring of the prompt.
type scriptedCompleter struct {
	name    string
	answers map[string]string
	err     error

	mu    sync.Mutex
	calls int
}

func (s *scriptedCompleter) Name() string { return s.name }

func (s *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.err != nil {
		return "", s.err
	}
	for key, answer := range s.answers {
		if strings.Contains(prompt, key) {
			return answer, nil
		}
	}
	return "", errors.New("no scripted answer")
}

func (s *scriptedCompleter) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
