package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/fpctl/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for Flower Power sensors",
	Long: `Scan for and display Flower Power sensors in the vicinity.

Sensors are listed strongest signal first with their identifier, name and
RSSI. Use the identifier with the other commands.`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().DurationP("duration", "d", 10*time.Second, "Scan duration (0 for until Ctrl+C)")
	scanCmd.Flags().StringP("format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringSlice("allow", nil, "Only show sensors with these identifiers")
	scanCmd.Flags().StringSlice("block", nil, "Hide sensors with these identifiers")
	scanCmd.Flags().Int("min-rssi", 0, "Hide sensors weaker than this RSSI (dBm)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	opts := scanner.DefaultScanOptions()
	opts.Duration, _ = cmd.Flags().GetDuration("duration")
	opts.AllowList, _ = cmd.Flags().GetStringSlice("allow")
	opts.BlockList, _ = cmd.Flags().GetStringSlice("block")
	opts.MinRSSI, _ = cmd.Flags().GetInt("min-rssi")

	ctx, cancel := interruptible(cmd.Context(), a.out)
	defer cancel()

	progress := func(string) {}
	if isTerminal(cmd.ErrOrStderr()) {
		p := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for Flower Power sensors", scanner.PhaseScanning, opts.Duration, scanner.PhaseProcessing)
		p.Start()
		defer p.Stop()
		progress = p.Callback()
	}

	entries, err := scanner.NewScanner(a.transport, a.logger).Scan(ctx, opts, progress, nil)
	if err != nil {
		return err
	}

	if format == "json" {
		return writeJSON(a.out, entries)
	}
	return displayDevicesTable(a.out, entries, time.Now())
}

func displayDevicesTable(out io.Writer, entries []scanner.DeviceEntry, now time.Time) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(out, "No Flower Power sensors found.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "IDENTIFIER\tNAME\tRSSI\tADVERTS\tLAST SEEN")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%d\t%s ago\n",
			e.ID, e.Name, e.RSSI, e.Adverts, now.Sub(e.LastSeen).Round(time.Second))
	}
	return w.Flush()
}

// writeJSON prints v as indented JSON
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
