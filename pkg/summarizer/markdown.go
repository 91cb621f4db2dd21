package summarizer

import (
	"fmt"
	"strings"
	"time"
)

// NewMarkdownFormatter returns a Formatter that renders a Markdown report.
func NewMarkdownFormatter() Formatter {
	return FormatFunc(formatMarkdown)
}

func formatMarkdown(s *Summary) string {
	var b strings.Builder

	b.WriteString("# Capture Summary\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", s.GeneratedAt.Format(time.RFC3339))

	b.WriteString("## Job\n\n")
	b.WriteString("| Item | Value |\n|------|-------|\n")
	row(&b, "ID", s.Job.ID)
	row(&b, "URL", s.Job.URL)
	if s.Job.EntryURL != "" && s.Job.EntryURL != s.Job.URL {
		row(&b, "Entry URL", s.Job.EntryURL)
	}
	row(&b, "Result", outcome(s.Job))
	row(&b, "Exit Code", fmt.Sprintf("%d", s.Job.ExitCode))
	b.WriteString("\n")

	b.WriteString("## Timing\n\n")
	b.WriteString("| Metric | Value |\n|--------|-------|\n")
	row(&b, "Total Duration", fmt.Sprintf("%d ms", s.Timing.TotalDurationMs))
	row(&b, "Settle Wait", fmt.Sprintf("%d ms (%d samples)", s.Timing.SettleDurationMs, s.Timing.SettleSamples))
	row(&b, "Settled", yesNo(s.Timing.Settled))
	b.WriteString("\n")

	if s.Embed.Embedded {
		b.WriteString("## Embed\n\n")
		b.WriteString("| Item | Value |\n|------|-------|\n")
		row(&b, "Type", s.Embed.Type)
		row(&b, "Size", fmt.Sprintf("%d x %d", s.Embed.Width, s.Embed.Height))
		b.WriteString("\n")
	}

	b.WriteString("## Behavior\n\n")
	b.WriteString("| Item | Value |\n|------|-------|\n")
	rule := s.Behavior.Rule
	if rule == "" {
		rule = "none"
	}
	row(&b, "Rule", rule)
	row(&b, "Video Players", fmt.Sprintf("%d started, %d ended", s.Behavior.PlayersStarted, s.Behavior.PlayersEnded))
	if s.Behavior.VideoTimedOut {
		row(&b, "Video Wait", "timed out")
	}
	row(&b, "Auto-Scroll", yesNo(s.Behavior.Scrolled))
	row(&b, "Screenshots", fmt.Sprintf("%d", s.Behavior.Screenshots))
	b.WriteString("\n")

	b.WriteString("## Archive\n\n")
	b.WriteString("| Item | Value |\n|------|-------|\n")
	row(&b, "Committed", yesNo(s.Archive.Committed))
	row(&b, "Uploaded", yesNo(s.Archive.Uploaded))
	row(&b, "Size", formatBytes(s.Archive.SizeBytes))
	if s.Archive.AccessURL != "" {
		row(&b, "Access URL", s.Archive.AccessURL)
	}

	return b.String()
}

func row(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "| %s | %s |\n", key, value)
}

func outcome(j JobInfo) string {
	switch {
	case j.Error != "":
		return "failed (" + j.Error + ")"
	case j.Phase == "skipped":
		return "skipped"
	default:
		return "done"
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// formatBytes renders n with a binary unit suffix.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
