package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/vk/burstci/internal/model"
)

// Printer renders run summaries for a terminal.
type Printer struct {
	w     io.Writer
	title lipgloss.Style
	dim   lipgloss.Style
	bold  lipgloss.Style
	state map[string]lipgloss.Style
}

// NewPrinter creates a printer writing to w. With color false the output is
// plain text.
func NewPrinter(w io.Writer, color bool) *Printer {
	profile := termenv.Ascii
	if color {
		profile = termenv.ANSI256
	}
	// The renderer would otherwise re-detect the profile from w.
	r := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	r.SetColorProfile(profile)

	tint := func(c string) lipgloss.Style { return r.NewStyle().Foreground(lipgloss.Color(c)) }
	return &Printer{
		w:     w,
		title: r.NewStyle().Bold(true).Underline(true),
		dim:   tint("245"),
		bold:  r.NewStyle().Bold(true),
		state: map[string]lipgloss.Style{
			string(model.StatusSucceeded):           tint("34"),
			string(model.StatusFailed):              tint("160").Bold(true),
			string(model.StatusSkipped):             tint("245"),
			string(model.StatusSkippedDueToFailure): tint("214"),
			string(StatusSucceededDeployFailed):     tint("214").Bold(true),
		},
	}
}

func (p *Printer) status(s string) string {
	if style, ok := p.state[s]; ok {
		return style.Render(s)
	}
	return s
}

// Print writes the summary of run.
func (p *Printer) Print(run *Run) error {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", p.title.Render("Run "+run.Workflow), p.dim.Render(run.ID))
	fmt.Fprintf(&b, "%s event=%s ref=%s", p.dim.Render("context"), run.Context.Event, run.Context.Ref)
	if run.Context.BaseRef != "" {
		fmt.Fprintf(&b, " base_ref=%s", run.Context.BaseRef)
	}
	b.WriteString("\n")
	if !run.Triggered {
		b.WriteString(p.dim.Render("no trigger matched; nothing ran") + "\n")
	}

	width := 0
	for _, inst := range run.Instances {
		width = max(width, len(inst.ID))
	}
	for _, inst := range run.Instances {
		fmt.Fprintf(&b, "  %-*s  %s", width, inst.ID, p.status(string(inst.Status)))
		if inst.Result != nil {
			fmt.Fprintf(&b, "  %s", p.dim.Render(round(inst.Result.Duration).String()))
			if inst.Result.Cache != "" {
				fmt.Fprintf(&b, "  %s", p.dim.Render("cache "+string(inst.Result.Cache)))
			}
		}
		b.WriteString("\n")
		if inst.Error != "" {
			fmt.Fprintf(&b, "  %-*s  %s\n", width, "", p.dim.Render(inst.Error))
		}
		if inst.Result == nil {
			continue
		}
		for _, step := range inst.Result.Steps {
			if step.Status == model.StatusSucceeded {
				continue
			}
			fmt.Fprintf(&b, "  %-*s    %s %s", width, "", step.Name, p.status(string(step.Status)))
			if step.Error != "" {
				fmt.Fprintf(&b, " %s", p.dim.Render(step.Error))
			}
			b.WriteString("\n")
		}
	}

	if d := run.Deploy; d != nil {
		state := "skipped"
		switch {
		case d.Error != "":
			state = "failed: " + d.Error
		case d.Published:
			state = "published"
		}
		fmt.Fprintf(&b, "%s %s %s\n", p.dim.Render("deploy"), d.Name, state)
	}
	fmt.Fprintf(&b, "%s %s in %s\n", p.bold.Render("Result"), p.status(string(run.Status)), round(run.Duration()))

	_, err := io.WriteString(p.w, b.String())
	return err
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}
