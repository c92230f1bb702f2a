package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scholar-sites/sitesync/internal/profilesync"
)

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync log of a running server",
	Long:  "Reads the in-memory sync log from a running 'sitesync serve' instance.",
	RunE: func(cmd *cobra.Command, args []string) error {
		url := cfg.Server.BaseURL + "/api/sync/log"
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
		if err != nil {
			return eris.Wrap(err, "status: create request")
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return eris.Wrap(err, "status: request sync log (is the server running?)")
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return eris.Wrap(err, "status: read response")
		}
		if resp.StatusCode != http.StatusOK {
			return eris.Errorf("status: unexpected status %d: %s", resp.StatusCode, string(body))
		}

		var entries []profilesync.Entry
		if err := json.Unmarshal(body, &entries); err != nil {
			return eris.Wrap(err, "status: unmarshal sync log")
		}

		switch statusFormat {
		case "json":
			out, err := json.MarshalIndent(entries, "", "  ")
			if err != nil {
				return eris.Wrap(err, "status: marshal json")
			}
			fmt.Println(string(out))
		case "yaml":
			out, err := yaml.Marshal(entries)
			if err != nil {
				return eris.Wrap(err, "status: marshal yaml")
			}
			fmt.Print(string(out))
		default:
			formatStatusEntries(os.Stdout, entries)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "output format: table, json, yaml")
	rootCmd.AddCommand(statusCmd)
}

// formatStatusEntries writes a tabular representation of sync entries to out.
func formatStatusEntries(out io.Writer, entries []profilesync.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "no sync entries yet")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TENANT\tCATALOG ID\tFREQ\tSTATUS\tWHEN\tMESSAGE")
	_, _ = fmt.Fprintln(w, "------\t----------\t----\t------\t----\t-------")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.TenantID,
			e.CatalogID,
			e.Frequency,
			e.Status,
			e.Timestamp.Format(time.DateTime),
			truncate(e.Message, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
