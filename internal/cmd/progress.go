package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/stellar/go/support/log"
)

// progress shows a spinner while a transaction is polled. Without a terminal
// the polls are only logged.
type progress struct {
	w   io.Writer
	tty bool
	log *log.Entry
	bar *progressbar.ProgressBar
}

func newProgress(w io.Writer, logger *log.Entry) *progress {
	return &progress{w: w, tty: isTerminal(w), log: logger}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *progress) observe(attempt int, status string) {
	if !p.tty {
		p.log.WithFields(log.F{"attempt": attempt, "status": status}).Debug("polled transaction")
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
	}
	p.bar.Describe(fmt.Sprintf("waiting for ledger: %s (poll %d)", status, attempt))
	_ = p.bar.Add(1)
}

// done clears the spinner, if any, before results are printed.
func (p *progress) done() {
	if p.bar != nil {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
