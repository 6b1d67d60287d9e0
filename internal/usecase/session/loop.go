package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"text/template"
)

// Loop is the line-oriented prompt/response loop. Lines go to the root
// agent unless prefixed with "<agent name>:".
type Loop struct {
	session  *Session
	renderer *Renderer
	root     Target
	targets  map[string]Target
	in       io.Reader
}

// NewLoop creates a Loop over in. root receives unprefixed lines; others are
// reachable by name prefix.
func NewLoop(s *Session, r *Renderer, in io.Reader, root Target, others ...Target) *Loop {
	targets := make(map[string]Target, len(others)+1)
	for _, t := range others {
		targets[t.Name] = t
	}
	targets[root.Name] = root
	return &Loop{session: s, renderer: r, root: root, targets: targets, in: in}
}

// Run reads lines until exit, quit, EOF or ctx is done. Invocation
// failures are printed and the loop continues.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(l.in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	l.renderer.Notice(fmt.Sprintf("Talking to %s. Prefix a line with \"<agent>:\" to address a collaborator; type exit to quit.", l.root.Name))
	for {
		l.renderer.Prompt()
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-readErr:
				if err != nil {
					return fmt.Errorf("read input: %w", err)
				}
			default:
			}
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isExit(line) {
			return nil
		}

		target, prompt := l.route(line)
		if prompt == "" {
			continue
		}
		answer, err := l.session.Invoke(ctx, target, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			l.renderer.Error(target.Name, err)
			continue
		}
		l.renderer.Answer(target.Name, answer)
	}
}

// route splits an optional "<agent name>:" prefix off line. Unknown
// prefixes are part of the prompt.
func (l *Loop) route(line string) (Target, string) {
	if i := strings.Index(line, ":"); i > 0 {
		if t, ok := l.targets[strings.TrimSpace(line[:i])]; ok {
			return t, strings.TrimSpace(line[i+1:])
		}
	}
	return l.root, line
}

func isExit(line string) bool {
	return strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit")
}

// PromptData is the data available to a hierarchy's prompt template.
type PromptData struct {
	Ticker string
}

// RenderPrompt fills a hierarchy prompt template such as
// "Analyze {{.Ticker}} and ...".
func RenderPrompt(tmpl string, data PromptData) (string, error) {
	t, err := template.New("prompt").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return b.String(), nil
}
