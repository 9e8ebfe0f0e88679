package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pot-code/learnsync/internal/syncclient"
)

func printRecords(w io.Writer, format string, records []*syncclient.LocalRecord) error {
	if format == "json" {
		if records == nil {
			records = []*syncclient.LocalRecord{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	if len(records) == 0 {
		fmt.Fprintln(w, "no progress")
		return nil
	}
	for _, r := range records {
		state := "synced"
		if r.Pending {
			state = "pending"
		}
		fmt.Fprintf(w, "%s\tmodule=%d\t%s\t%s\n", r.CourseID, r.CurrentModule, state, strings.Join(r.CompletedItems.Slice(), ","))
		if r.LastError != "" {
			fmt.Fprintf(w, "\tlast error: %s\n", r.LastError)
		}
	}
	return nil
}

func printRecord(w io.Writer, format string, record *syncclient.LocalRecord) error {
	if record == nil {
		return printRecords(w, format, nil)
	}
	return printRecords(w, format, []*syncclient.LocalRecord{record})
}
