package training

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
)

// ProgressBar renders epoch progress on a single terminal line.
type ProgressBar struct {
	description string
	out         io.Writer
	width       int
	showETA     bool
}

// NewProgressBar creates a progress bar writing to out. A nil writer
// selects os.Stdout.
func NewProgressBar(description string, out io.Writer) *ProgressBar {
	if out == nil {
		out = os.Stdout
	}
	return &ProgressBar{
		description: description,
		out:         out,
		width:       40,
		showETA:     true,
	}
}

// Update redraws the bar from a progress snapshot.
func (pb *ProgressBar) Update(p Progress) {
	fmt.Fprint(pb.out, "\r"+pb.Line(p))
}

// Finish terminates the line.
func (pb *ProgressBar) Finish() {
	fmt.Fprintln(pb.out)
}

// Callbacks drives the bar from trainer events.
func (pb *ProgressBar) Callbacks() Callbacks {
	return Callbacks{
		OnProgress: pb.Update,
		OnTrainEnd: func(*Result) { pb.Finish() },
		OnError:    func(error) { pb.Finish() },
	}
}

// Line formats one progress snapshot without the leading carriage return.
func (pb *ProgressBar) Line(p Progress) string {
	fraction := p.Fraction()
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(pb.width))

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %3.0f%%|%s%s| %d/%d",
		pb.description,
		fraction*100,
		strings.Repeat("█", filled),
		strings.Repeat(" ", pb.width-filled),
		p.Completed(),
		p.TotalEpochs,
	)

	if pb.showETA {
		fmt.Fprintf(&b, " [%s<%s", formatDuration(p.Elapsed), formatDuration(p.Remaining))
	} else {
		fmt.Fprintf(&b, " [%s", formatDuration(p.Elapsed))
	}

	// sorted so the line does not jitter between redraws
	names := make([]string, 0, len(p.Logs))
	for name := range p.Logs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := p.Logs[name]
		if strings.Contains(name, "acc") {
			fmt.Fprintf(&b, ", %s=%.2f%%", name, value*100)
		} else {
			fmt.Fprintf(&b, ", %s=%.4f", name, value)
		}
	}
	b.WriteString("]")
	return b.String()
}

// formatDuration formats duration as MM:SS
func formatDuration(d time.Duration) string {
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
