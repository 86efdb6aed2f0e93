package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/eshaffer321/reconcile-backend/internal/domain/pool"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Width(20)
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("6")).
			Padding(0, 1)
)

// RunSummary is what a headless run reports.
type RunSummary struct {
	Stats         pool.Stats
	MatchesFound  int
	AutoApproved  int
	LedgerSkipped int
	BankSkipped   int
	Files         []string
}

// PrintHeader prints the application header
func PrintHeader(w io.Writer, ledger, bank string) {
	fmt.Fprintln(w, titleStyle.Render("reconcile")+" "+ledger+" ↔ "+bank)
}

// PrintSummary prints the run summary in a bordered box.
func PrintSummary(w io.Writer, s RunSummary) {
	row := func(label string, value int, style lipgloss.Style) string {
		return labelStyle.Render(label) + style.Render(fmt.Sprint(value))
	}
	plain := lipgloss.NewStyle()
	unmatched := plain
	if s.Stats.UnmatchedLedger+s.Stats.UnmatchedBank > 0 {
		unmatched = warnStyle
	}

	lines := []string{
		titleStyle.Render("Reconciliation summary"),
		row("Ledger transactions", s.Stats.TotalLedger, plain),
		row("Bank transactions", s.Stats.TotalBank, plain),
		row("Proposals", s.MatchesFound, plain),
		row("Confirmed", s.Stats.Confirmed, goodStyle),
		row("Auto-approved", s.AutoApproved, goodStyle),
		row("Pending review", s.Stats.Pending, plain),
		row("Unmatched ledger", s.Stats.UnmatchedLedger, unmatched),
		row("Unmatched bank", s.Stats.UnmatchedBank, unmatched),
	}
	if skipped := s.LedgerSkipped + s.BankSkipped; skipped > 0 {
		lines = append(lines, row("Rows skipped", skipped, warnStyle))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))

	if len(s.Files) > 0 {
		fmt.Fprintln(w, "\nWrote:")
		for _, f := range s.Files {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}
