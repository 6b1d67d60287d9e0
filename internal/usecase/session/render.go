package session

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/safa0/amazon-bedrock-agent-samples/internal/domain"
)

// TraceLevel selects which invocation trace events are displayed.
type TraceLevel string

const (
	TraceCore    TraceLevel = "core"    // answers only
	TraceOutline TraceLevel = "outline" // hand-offs and rationales
	TraceAll     TraceLevel = "all"
)

// ParseTraceLevel validates a trace level name.
func ParseTraceLevel(s string) (TraceLevel, error) {
	switch l := TraceLevel(strings.ToLower(strings.TrimSpace(s))); l {
	case TraceCore, TraceOutline, TraceAll:
		return l, nil
	case "":
		return TraceCore, nil
	}
	return "", domain.NewDomainError("session.ParseTraceLevel", domain.ErrInvalidInput,
		fmt.Sprintf("unknown trace level %q (want core, outline or all)", s))
}

// Enabled reports whether any trace is requested from the remote.
func (l TraceLevel) Enabled() bool { return l == TraceOutline || l == TraceAll }

// Shows reports whether ev is displayed at this level.
func (l TraceLevel) Shows(ev domain.TraceEvent) bool {
	switch l {
	case TraceAll:
		return true
	case TraceOutline:
		return ev.Handoff() || ev.Type == domain.TraceRationale
	}
	return false
}

// Render modes.
const (
	RenderPlain    = "plain"
	RenderMarkdown = "markdown"
)

var (
	agentLabel = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#0277bd", Dark: "#4fc3f7"})
	traceLabel = lipgloss.NewStyle().Faint(true)
	errorLabel = lipgloss.NewStyle().Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#ef5350"})
)

// Renderer writes answers, traces and errors to the terminal.
type Renderer struct {
	out      io.Writer
	level    TraceLevel
	markdown *glamour.TermRenderer
}

// NewRenderer creates a Renderer. In markdown mode answers are rendered with glamour.
func NewRenderer(out io.Writer, mode string, level TraceLevel) (*Renderer, error) {
	r := &Renderer{out: out, level: level}
	if mode == RenderMarkdown {
		md, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return nil, fmt.Errorf("create markdown renderer: %w", err)
		}
		r.markdown = md
	}
	return r, nil
}

// Level returns the trace level the renderer filters with.
func (r *Renderer) Level() TraceLevel { return r.level }

// Answer prints an agent's answer under its name.
func (r *Renderer) Answer(agent, text string) {
	body := text
	if r.markdown != nil {
		if rendered, err := r.markdown.Render(text); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	fmt.Fprintf(r.out, "%s\n%s\n\n", agentLabel.Render(agent+":"), body)
}

// Trace prints ev if the trace level shows it.
func (r *Renderer) Trace(ev domain.TraceEvent) {
	if !r.level.Shows(ev) {
		return
	}
	var line string
	switch ev.Type {
	case domain.TraceCollaboratorCall:
		line = fmt.Sprintf("%s -> %s", ev.Agent, ev.Collaborator)
	case domain.TraceCollaboratorResult:
		line = fmt.Sprintf("%s <- %s", ev.Agent, ev.Collaborator)
	default:
		line = fmt.Sprintf("%s [%s]", ev.Agent, ev.Type)
		if ev.Text != "" {
			line += " " + ev.Text
		}
	}
	fmt.Fprintln(r.out, traceLabel.Render("  trace: "+line))
}

// Error prints an invocation failure inline.
func (r *Renderer) Error(agent string, err error) {
	fmt.Fprintf(r.out, "%s %v\n", errorLabel.Render(agent+" failed:"), err)
	if IsCircuitOpen(err) {
		fmt.Fprintln(r.out, traceLabel.Render("  requests are paused after repeated failures; try again shortly"))
	}
	fmt.Fprintln(r.out)
}

// Notice prints an informational line.
func (r *Renderer) Notice(msg string) {
	fmt.Fprintln(r.out, traceLabel.Render(msg))
}

// Prompt prints the input prompt.
func (r *Renderer) Prompt() {
	fmt.Fprint(r.out, "> ")
}
