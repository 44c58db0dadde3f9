package pipeline

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/refaktor/jnigen/textutils"
	"github.com/refaktor/jnigen/typemap"
)

// WriteReport prints a summary table of results, followed by every
// warning and error.
func WriteReport(w io.Writer, results []*Result) {
	fmt.Fprintf(w, "==Generation summary==\n")
	tbl := tablewriter.NewWriter(w)
	tbl.SetHeader([]string{"Target", "State", "Units", "Methods", "Structs", "Files changed", "Warnings", "Time"})
	for _, r := range results {
		state := r.State.String()
		if r.State == Failed {
			state += " (" + r.FailedIn.String() + ")"
		}
		files := "-"
		if r.State == Written {
			files = fmt.Sprintf("%v/%v", r.Changed(), len(r.Files))
		}
		tbl.Append([]string{
			r.Target.ID,
			state,
			strconv.Itoa(r.Units),
			strconv.Itoa(r.Methods),
			strconv.Itoa(r.Structs),
			files,
			strconv.Itoa(len(r.Warnings)),
			r.Duration.Round(time.Microsecond).String(),
		})
	}
	tbl.SetColumnAlignment([]int{
		tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_CENTER, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT,
	})
	tbl.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	tbl.SetCenterSeparator("|")
	tbl.SetAutoFormatHeaders(false)
	tbl.Render()

	for _, r := range results {
		if len(r.Warnings) > 0 {
			fmt.Fprintf(w, "\n==Warnings (%v)==\n", r.Target.ID)
			for _, warn := range r.Warnings {
				fmt.Fprintf(w, "%v\n", textutils.Ellipsize(warn.String(), 240))
			}
		}
		if r.Err != nil {
			fmt.Fprintf(w, "\n==Errors (%v)==\n", r.Target.ID)
			fmt.Fprintf(w, "%v\n", r.Err)
			if mErrs := (typemap.Errors)(nil); errors.As(r.Err, &mErrs) && len(mErrs) > 1 {
				fmt.Fprint(w, textutils.IndentString(mErrs.String(), "  ", 1))
			}
		}
	}
}
