// Package display renders session progress on the terminal.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Flusher is an optional interface for writers that support flushing.
type Flusher interface {
	Sync() error
}

// Display handles terminal output with a spinner and formatted status.
// The spinner only animates when the writer is a terminal.
type Display struct {
	out      io.Writer
	animate  bool
	spinMu   sync.Mutex
	spinning bool
	spinStop chan struct{}
	spinDone chan struct{}
	spinMsg  string
	start    time.Time
}

// NewDisplay creates a display writing to out.
func NewDisplay(out io.Writer) *Display {
	f, _ := out.(*os.File)
	return &Display{out: out, animate: IsTerminal(f), start: time.Now()}
}

// Writer returns the underlying writer.
func (d *Display) Writer() io.Writer { return d.out }

func (d *Display) flush() {
	if f, ok := d.out.(Flusher); ok {
		f.Sync()
	}
}

// StartSpinner shows msg with an animated spinner until StopSpinner.
// On a non-terminal writer it prints msg once.
func (d *Display) StartSpinner(msg string) {
	d.spinMu.Lock()
	if d.spinning {
		d.spinMsg = msg
		d.spinMu.Unlock()
		return
	}
	if !d.animate {
		d.spinMu.Unlock()
		fmt.Fprintf(d.out, "   %s\n", StyleMuted.Render(msg))
		return
	}
	d.spinning = true
	d.spinMsg = msg
	d.spinStop = make(chan struct{})
	d.spinDone = make(chan struct{})
	d.spinMu.Unlock()

	started := time.Now()
	go func() {
		defer close(d.spinDone)
		frame := 0
		first := true
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-d.spinStop:
				if !first {
					fmt.Fprint(d.out, "\033[1A\r\033[K")
					d.flush()
				}
				return
			case <-ticker.C:
				d.spinMu.Lock()
				msg := d.spinMsg
				d.spinMu.Unlock()
				line := fmt.Sprintf("   %s %s (%s)\n", StyleAccent.Render(SpinnerFrames[frame]), msg, formatElapsed(time.Since(started)))
				if first {
					fmt.Fprint(d.out, line)
					first = false
				} else {
					fmt.Fprint(d.out, "\033[1A\r\033[K"+line)
				}
				d.flush()
				frame = (frame + 1) % len(SpinnerFrames)
			}
		}
	}()
}

// StopSpinner stops the spinner, if running.
func (d *Display) StopSpinner() {
	d.spinMu.Lock()
	if !d.spinning {
		d.spinMu.Unlock()
		return
	}
	d.spinning = false
	close(d.spinStop)
	d.spinMu.Unlock()
	<-d.spinDone
}

// SessionInfo describes a session for its header.
type SessionInfo struct {
	ID           string
	Topic        string
	Provider     string
	Model        string
	MaxRevisions int
	Search       bool
	Resumed      bool
}

// ShowSessionHeader prints the session banner.
func (d *Display) ShowSessionHeader(info SessionInfo) {
	search := "off"
	if info.Search {
		search = "on"
	}
	lines := []string{
		StyleTitle.Render("coursewright"),
		fmt.Sprintf("Topic: %s", info.Topic),
		fmt.Sprintf("Model: %s/%s  Revisions: %d  Web search: %s", info.Provider, info.Model, info.MaxRevisions, search),
	}
	if info.Resumed {
		lines = append(lines, StyleMuted.Render("Resumed session "+info.ID))
	}
	fmt.Fprintln(d.out, HeaderBox().Render(strings.Join(lines, "\n")))
}

// ShowStage prints a stage header, e.g. "◆ outline  revision 2/5".
func (d *Display) ShowStage(stage, detail string) {
	d.StopSpinner()
	line := fmt.Sprintf("%s %s", StyleStageIcon.String(), StyleBold.Render(stage))
	if detail != "" {
		line += "  " + StyleMuted.Render(detail)
	}
	fmt.Fprintf(d.out, "\n%s\n", line)
}

// ShowAgent prints which persona is working.
func (d *Display) ShowAgent(agent, label, action string) {
	fmt.Fprintf(d.out, "   %s %s\n", AgentStyle(agent).Render(label), action)
}

// ShowArtifact frames an artifact for the user to review.
func (d *Display) ShowArtifact(title, body string) {
	d.StopSpinner()
	content := StyleTitle.Render(title) + "\n\n" + strings.TrimSpace(body)
	fmt.Fprintln(d.out, ArtifactBox().Render(content))
}

// ShowSuccess prints the completion box.
func (d *Display) ShowSuccess(msg string, chapters int) {
	d.StopSpinner()
	elapsed := time.Since(d.start).Round(time.Second)
	content := StyleSuccess.Render("[ok] "+msg) + "\n" +
		fmt.Sprintf("Chapters: %d\nTotal time: %s", chapters, elapsed)
	fmt.Fprintln(d.out, SuccessBox().Render(content))
}

// ShowError prints an error box naming the stage, the error kind and the
// recovery options.
func (d *Display) ShowError(stage, kind, msg, recovery string) {
	d.StopSpinner()
	title := "[!!] Error"
	if stage != "" {
		title = fmt.Sprintf("[!!] %s failed", stage)
	}
	if kind != "" {
		title += " (" + kind + ")"
	}
	content := StyleError.Render(title) + "\n" + msg
	if recovery != "" {
		content += "\n" + StyleMuted.Render(recovery)
	}
	fmt.Fprintln(d.out, ErrorBox().Render(content))
}

// ShowWarning prints a warning line.
func (d *Display) ShowWarning(format string, args ...any) {
	d.StopSpinner()
	fmt.Fprintf(d.out, "   %s %s\n", StyleWarning.Render("!"), fmt.Sprintf(format, args...))
}

// ShowInfo prints an informational line.
func (d *Display) ShowInfo(format string, args ...any) {
	fmt.Fprintf(d.out, "   %s\n", StyleInfo.Render(fmt.Sprintf(format, args...)))
}

// ShowRetry displays retry information.
func (d *Display) ShowRetry(attempt, max int, delay time.Duration) {
	fmt.Fprintf(d.out, "   %s\n", StyleMuted.Render(fmt.Sprintf("... retrying in %s (attempt %d/%d)", delay.Round(time.Millisecond), attempt, max)))
}

// formatElapsed formats duration with fixed width (always 6 chars like " 1.04s")
func formatElapsed(d time.Duration) string {
	secs := d.Seconds()
	if secs < 10 {
		return fmt.Sprintf("%5.2fs", secs)
	} else if secs < 100 {
		return fmt.Sprintf("%5.1fs", secs)
	}
	return fmt.Sprintf("%5.0fs", secs)
}
