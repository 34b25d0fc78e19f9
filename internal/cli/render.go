package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/markdave123-py/Ledgerlens/internal/core/ingestion_engine"
	"github.com/markdave123-py/Ledgerlens/internal/models"
	"github.com/markdave123-py/Ledgerlens/internal/services"
)

var (
	succeeded = color.New(color.FgGreen).SprintFunc()
	partial   = color.New(color.FgYellow).SprintFunc()
	failed    = color.New(color.FgRed).SprintFunc()
	heading   = color.New(color.FgCyan, color.Bold).SprintFunc()
)

func statusLabel(status string) string {
	switch status {
	case models.StatusReady:
		return succeeded(status)
	case models.StatusPartial:
		return partial(status)
	}
	return failed(status)
}

// renderBatch prints one line per document and a totals line. It returns
// the number of documents that failed outright.
func renderBatch(w io.Writer, results []ingestion_engine.BatchResult) int {
	var units, softFailures, hard int
	for _, r := range results {
		if r.Err != nil {
			hard++
			fmt.Fprintf(w, "%s %s: %v\n", statusLabel(models.StatusFailed), r.Source.FileName, r.Err)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", statusLabel(r.Report.Status()), r.Report.Summary())
		for _, f := range r.Report.Failures {
			fmt.Fprintf(w, "    %s\n", f)
		}
		units += r.Report.UnitCount()
		softFailures += len(r.Report.Failures)
	}
	fmt.Fprintf(w, "%s %d documents, %d units, %d soft failures, %d failed documents\n",
		heading("done:"), len(results), units, softFailures, hard)
	return hard
}

func renderStats(w io.Writer, st *services.Stats) {
	fmt.Fprintf(w, "%s %s\n", heading("collection:"), st.Collection)
	fmt.Fprintf(w, "units:      %d\n", st.Units)
	fmt.Fprintf(w, "documents:  %d\n", st.Documents)
	statuses := make([]string, 0, len(st.ByStatus))
	for s := range st.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(w, "  %-10s %d\n", s, st.ByStatus[s])
	}
}
