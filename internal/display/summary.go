package display

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
)

// SummaryRow is one stage line of the end-of-run table.
type SummaryRow struct {
	Stage    string
	State    string
	Files    int
	Written  int
	Skipped  int
	Failed   int
	Saved    int64 // Input minus output bytes; negative when outputs grew.
	Duration time.Duration
}

// PrintSummary renders rows as a table. Saved is shown as the delta of output
// against input, so a shrinking stage reads "- 1.2 KiB".
func PrintSummary(w io.Writer, rows []SummaryRow) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Stage", "State", "Files", "Written", "Skipped", "Failed", "Size", "Time"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, r := range rows {
		table.Append([]string{
			r.Stage,
			r.State,
			strconv.Itoa(r.Files),
			strconv.Itoa(r.Written),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
			FormatBytesWithSign(-r.Saved),
			FormatDuration(r.Duration),
		})
	}
	table.Render()
}
