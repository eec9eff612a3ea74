package notification

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/frahmantamala/facilities-maintenance/internal/call"
)

// Renderer composes notification text. Bodies are written in Markdown and
// rendered to sanitised HTML, since titles and descriptions are user input.
type Renderer struct {
	md      goldmark.Markdown
	policy  *bluemonday.Policy
	baseURL string
}

func NewRenderer(baseURL string) *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.Strikethrough,
			extension.Linkify,
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
		),
	)

	return &Renderer{
		md:      md,
		policy:  bluemonday.UGCPolicy(),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (r *Renderer) Subject(c CallSummary, t Type) string {
	switch t {
	case TypeNewCall:
		return fmt.Sprintf("[%s] New %s priority call: %s", c.CallNumber, c.Priority, c.Title)
	case TypeAssignment:
		return fmt.Sprintf("[%s] Call assigned: %s", c.CallNumber, c.Title)
	case TypeCompletion:
		return fmt.Sprintf("[%s] Call %s: %s", c.CallNumber, c.Status, c.Title)
	default:
		return fmt.Sprintf("[%s] Status changed to %s", c.CallNumber, c.Status)
	}
}

// Body returns the Markdown body.
func (r *Renderer) Body(c CallSummary, t Type) string {
	var b strings.Builder

	switch t {
	case TypeNewCall:
		b.WriteString("A new maintenance call has been logged.\n\n")
	case TypeAssignment:
		b.WriteString("A maintenance call has been assigned.\n\n")
	case TypeCompletion:
		fmt.Fprintf(&b, "A maintenance call has been %s.\n\n", c.Status)
	default:
		fmt.Fprintf(&b, "A maintenance call moved to **%s**.\n\n", c.Status)
	}

	fmt.Fprintf(&b, "- **Call:** %s\n", c.CallNumber)
	fmt.Fprintf(&b, "- **Title:** %s\n", c.Title)
	fmt.Fprintf(&b, "- **Type:** %s\n", c.CallType)
	fmt.Fprintf(&b, "- **Location:** %s, %s (%s)\n", c.Building, c.Province, c.Region)
	priority := call.Priority(c.Priority)
	fmt.Fprintf(&b, "- **Priority:** %s (respond within %s)\n", c.Priority, priority.ResponseTarget())
	fmt.Fprintf(&b, "- **Status:** %s\n", c.Status)
	fmt.Fprintf(&b, "- **Reported:** %s\n", c.ReportedDate.Format("2006-01-02 15:04 MST"))

	if c.Description != "" {
		b.WriteString("\n")
		b.WriteString(c.Description)
		b.WriteString("\n")
	}
	if r.baseURL != "" {
		fmt.Fprintf(&b, "\n[Open call %s](%s/calls/%s)\n", c.CallNumber, r.baseURL, c.ID)
	}
	return b.String()
}

// HTML renders a Markdown body and sanitises the result.
func (r *Renderer) HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("failed to convert markdown to HTML: %w", err)
	}
	return r.policy.Sanitize(buf.String()), nil
}
