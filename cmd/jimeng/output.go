package main

import (
	"encoding/json"
	"fmt"
	"io"

	"visualgen/internal/providers/jimeng"
)

type outcomeJSON struct {
	TaskID string                   `json:"task_id,omitempty"`
	Kind   jimeng.Kind              `json:"kind"`
	State  jimeng.State             `json:"state"`
	Polls  int                      `json:"polls"`
	Result *jimeng.GenerationResult `json:"result,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

func progressPrinter(w io.Writer) func(jimeng.Progress) {
	return func(p jimeng.Progress) {
		fmt.Fprintf(w, "[%s #%d] %s\n", p.TaskID, p.Polls, p.Message)
	}
}

// printOutcome writes the result and returns the outcome error so the process
// exits non-zero on failure.
func printOutcome(w io.Writer, out jimeng.Outcome, asJSON bool) error {
	if asJSON {
		doc := outcomeJSON{
			TaskID: out.TaskID,
			Kind:   out.Kind,
			State:  out.State,
			Polls:  out.Polls,
			Result: out.Result,
		}
		if out.Err != nil {
			doc.Error = out.Err.Error()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return out.Err
	}

	if out.State != jimeng.StateDone || out.Result == nil {
		fmt.Fprintln(w, out.UserMessage())
		return out.Err
	}
	fmt.Fprintln(w, out.Result.URL)
	if out.Result.Description != "" {
		fmt.Fprintln(w, out.Result.Description)
	}
	return nil
}
