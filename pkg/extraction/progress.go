package extraction

import (
	"fmt"
	"strings"
	"time"

	"brainextract/pkg/evolution"
)

// ProgressCallback is a function that reports progress during extraction
type ProgressCallback = evolution.ProgressCallback

// progressBar prints a text progress bar to stdout
type progressBar struct {
	startTime time.Time
	width     int
}

func newProgressBar() *progressBar {
	return &progressBar{startTime: time.Now(), width: 40}
}

// report renders one progress update. Messages with a zero total are printed
// as plain lines.
func (p *progressBar) report(completed, total int, message string) {
	if total == 0 {
		if message != "" {
			fmt.Println(message)
		}
		return
	}

	percentage := float64(completed) / float64(total) * 100
	numBars := int(percentage / 100 * float64(p.width))

	var bar strings.Builder
	bar.WriteString("[")
	for i := 0; i < p.width; i++ {
		switch {
		case i < numBars:
			bar.WriteString("█")
		case i == numBars:
			bar.WriteString("▓")
		default:
			bar.WriteString("░")
		}
	}
	bar.WriteString("]")

	status := ""
	if message != "" {
		status = " | " + message
	}

	if completed > 0 {
		elapsed := time.Since(p.startTime)
		remaining := "0s"
		if completed < total {
			perStep := elapsed.Seconds() / float64(completed)
			remaining = formatSeconds(perStep * float64(total-completed))
		}
		fmt.Printf("\r%s %.1f%% (%d/%d) [%.1fs elapsed | %s remaining%s]",
			bar.String(), percentage, completed, total, elapsed.Seconds(), remaining, status)
	} else {
		fmt.Printf("\r%s %.1f%% (%d/%d)%s", bar.String(), percentage, completed, total, status)
	}

	if completed >= total {
		fmt.Println()
	}
}

func formatSeconds(s float64) string {
	switch {
	case s < 60:
		return fmt.Sprintf("%.1fs", s)
	case s < 3600:
		return fmt.Sprintf("%.1fm", s/60)
	default:
		return fmt.Sprintf("%.1fh", s/3600)
	}
}
