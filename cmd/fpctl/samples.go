package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/fpctl/internal/session"
	"github.com/srg/fpctl/internal/store"
)

// samplesCmd represents the samples command
var samplesCmd = &cobra.Command{
	Use:   "samples <identifier>",
	Short: "Harvest history samples from a sensor",
	Long: `Connect to a Flower Power and fetch its stored history entries.

By default harvesting resumes after the last archived entry; --index sets the
first entry explicitly. Fetched batches are archived in the local store.`,
	Args: cobra.ExactArgs(1),
	RunE: runSamples,
}

func init() {
	samplesCmd.Flags().Int("index", -1, "First history entry to fetch (default: resume from the archive)")
	samplesCmd.Flags().StringP("format", "f", "text", "Output format (text, json)")
}

// samplesReport is the printable summary of one harvest
type samplesReport struct {
	Identifier      string                                         `json:"identifier"`
	Outcome         string                                         `json:"outcome"`
	StartIndex      int                                            `json:"start_index"`
	FirstEntryIndex int                                            `json:"first_entry_index"`
	LastEntryIndex  int                                            `json:"last_entry_index"`
	Bytes           int                                            `json:"bytes"`
	Values          *orderedmap.OrderedMap[session.Attribute, any] `json:"values"`
}

func newSamplesReport(identifier string, b *session.SampleBatch) samplesReport {
	return samplesReport{
		Identifier:      identifier,
		Outcome:         b.Outcome.String(),
		StartIndex:      b.StartIndex,
		FirstEntryIndex: b.FirstEntryIndex,
		LastEntryIndex:  b.HistoryLastEntryIndex,
		Bytes:           len(b.Buffer),
		Values:          b.Values,
	}
}

func runSamples(cmd *cobra.Command, args []string) error {
	id, err := sensorID(args[0])
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [text json]", format)
	}
	index, _ := cmd.Flags().GetInt("index")

	a, err := newApp(cmd, true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := interruptible(cmd.Context(), a.out)
	defer cancel()

	s := a.newSession(id)
	batch, err := a.harvest(ctx, s, index)
	if err != nil {
		return err
	}

	report := newSamplesReport(s.Identifier(), batch)
	if format == "json" {
		return writeJSON(a.out, report)
	}
	if batch.Outcome == session.OutcomeNoUpdateRequired {
		a.console.printf("%s: up to date at entry %d\n", s.Identifier(), report.LastEntryIndex)
		return nil
	}
	a.console.printf("%s: fetched entries %d..%d (%d bytes), firmware %s, hardware %s\n",
		s.Identifier(), report.StartIndex, report.LastEntryIndex, report.Bytes,
		batch.FirmwareVersion, batch.HardwareVersion)
	return nil
}

// harvest connects, fetches samples from index (the archive position when
// negative), archives a fetched batch and disconnects.
func (a *app) harvest(ctx context.Context, s *session.Session, index int) (*session.SampleBatch, error) {
	if index < 0 {
		next, err := store.NextIndex(ctx, a.store, s.Identifier())
		if err != nil {
			return nil, fmt.Errorf("failed to read sample archive: %w", err)
		}
		index = next
	}

	var batch *session.SampleBatch
	err := a.withSession(ctx, s, func(ctx context.Context) error {
		var err error
		batch, err = s.GetSamples(ctx, index)
		return err
	})
	if err != nil {
		return nil, err
	}

	if batch.Outcome == session.OutcomeFetched {
		rec := store.SampleRecord{
			Identifier:      s.Identifier(),
			StartIndex:      batch.StartIndex,
			LastEntryIndex:  batch.HistoryLastEntryIndex,
			FirmwareVersion: batch.FirmwareVersion,
			HardwareVersion: batch.HardwareVersion,
			Buffer:          batch.Buffer,
			FetchedAt:       time.Now(),
		}
		if err := a.store.SaveSamples(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to archive samples: %w", err)
		}
		a.logger.WithFields(logrus.Fields{
			"device":      s.Identifier(),
			"start_index": batch.StartIndex,
			"last_index":  batch.HistoryLastEntryIndex,
			"bytes":       len(batch.Buffer),
		}).Info("Samples archived")
	}
	return batch, nil
}
