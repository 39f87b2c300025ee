package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipmerge/internal/history"
)

type historyEntry struct {
	ID        string    `json:"id"`
	Cycle     string    `json:"cycle_id"`
	Status    string    `json:"status"`
	Category  string    `json:"category"`
	Scope     string    `json:"scope,omitempty"`
	Key       string    `json:"key"`
	Mode      string    `json:"mode"`
	Artifact  string    `json:"artifact"`
	Fragments []string  `json:"fragments"`
	Error     string    `json:"error,omitempty"`
	Started   time.Time `json:"started_at"`
	Finished  time.Time `json:"finished_at,omitzero"`
}

type historyReport struct {
	Batches []historyEntry `json:"batches"`
	Totals  map[string]int `json:"totals"`
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var statuses []string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent batches from the commit ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			filter, err := parseStatuses(statuses)
			if err != nil {
				return err
			}
			ledger, err := history.Open(cfg)
			if err != nil {
				return err
			}
			defer ledger.Close()

			batches, err := ledger.Recent(cmd.Context(), limit, filter...)
			if err != nil {
				return err
			}
			counts, err := ledger.Counts(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				report := historyReport{
					Batches: make([]historyEntry, 0, len(batches)),
					Totals:  make(map[string]int, len(counts)),
				}
				for _, b := range batches {
					report.Batches = append(report.Batches, toHistoryEntry(b))
				}
				for status, n := range counts {
					report.Totals[string(status)] = n
				}
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			if len(batches) == 0 {
				fmt.Fprintln(out, "No batches recorded")
				return nil
			}
			rows := make([][]string, 0, len(batches))
			for _, b := range batches {
				rows = append(rows, []string{
					b.StartedAt.Local().Format("2006-01-02 15:04:05"),
					string(b.Status),
					batchLabel(b),
					b.Mode,
					strconv.Itoa(b.FragmentCount()),
					historyDetail(b),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Started", "Status", "Batch", "Mode", "Fragments", "Artifact / Error"},
				rows,
				formatCounts(counts),
				4,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of batches to show")
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show batches with these statuses (pending, committed, archived, failed, blocked)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func parseStatuses(values []string) ([]history.Status, error) {
	known := []history.Status{
		history.StatusPending,
		history.StatusCommitted,
		history.StatusArchived,
		history.StatusFailed,
		history.StatusBlocked,
	}
	out := make([]history.Status, 0, len(values))
	for _, value := range values {
		value = strings.ToLower(strings.TrimSpace(value))
		if value == "" {
			continue
		}
		matched := false
		for _, status := range known {
			if string(status) == value {
				out = append(out, status)
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("unknown status %q", value)
		}
	}
	return out, nil
}

func batchLabel(b *history.Batch) string {
	if b.Scope != "" {
		return b.Category + "/" + b.Scope
	}
	return b.Category + "/" + b.Key
}

func historyDetail(b *history.Batch) string {
	if b.Error != "" {
		return b.Error
	}
	return filepath.Base(b.ArtifactPath)
}

func formatCounts(counts map[history.Status]int) string {
	order := []history.Status{
		history.StatusArchived,
		history.StatusCommitted,
		history.StatusPending,
		history.StatusFailed,
		history.StatusBlocked,
	}
	parts := make([]string, 0, len(order))
	for _, status := range order {
		parts = append(parts, fmt.Sprintf("%s %d", status, counts[status]))
	}
	return "Totals: " + strings.Join(parts, ", ")
}

func toHistoryEntry(b *history.Batch) historyEntry {
	entry := historyEntry{
		ID:        b.ID,
		Cycle:     b.CycleID,
		Status:    string(b.Status),
		Category:  b.Category,
		Scope:     b.Scope,
		Key:       b.Key,
		Mode:      b.Mode,
		Artifact:  b.ArtifactPath,
		Fragments: make([]string, 0, len(b.Fragments)),
		Error:     b.Error,
		Started:   b.StartedAt,
		Finished:  b.FinishedAt,
	}
	for _, f := range b.Fragments {
		entry.Fragments = append(entry.Fragments, f.Name)
	}
	return entry
}
