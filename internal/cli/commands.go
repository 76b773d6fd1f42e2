package cli

import (
	"fmt"
	"time"

	"github.com/fieldops/cycletime/internal/models"
)

// RecomputeCommand regenerates derived records for a partition or all.
type RecomputeCommand struct {
	globals *GlobalFlags

	Partition string `long:"partition" short:"p" description:"Partition key to recompute"`
	All       bool   `long:"all" description:"Recompute every partition"`
}

// Execute runs the recompute subcommand.
func (c *RecomputeCommand) Execute(args []string) error {
	if c.All == (c.Partition != "") {
		return fmt.Errorf("provide --partition or --all, not both")
	}

	var resp models.RecomputeResponse
	err := c.globals.doJSON("POST", "/admin/recompute", models.RecomputeRequest{
		PartitionKey: c.Partition,
		All:          c.All,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("recomputed %s: %d records across %d partition(s) in %dms\n",
		resp.Scope, resp.RecordsWritten, resp.Partitions, resp.DurationMS)
	return nil
}

// FlagCommand re-derives anomaly flags.
type FlagCommand struct {
	globals *GlobalFlags

	Threshold int64 `long:"threshold" short:"t" description:"Net delta threshold in seconds (0 = server default)"`
}

// Execute runs the flag-anomalies subcommand.
func (c *FlagCommand) Execute(args []string) error {
	var req models.FlagRequest
	if c.Threshold != 0 {
		req.ThresholdSeconds = &c.Threshold
	}

	var resp models.FlagResponse
	err := c.globals.doJSON("POST", "/admin/anomalies/flag", req, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("flagged %d record(s) above %ds (cleared %d)\n",
		resp.Flagged, resp.ThresholdSeconds, resp.Cleared)
	return nil
}

// AggregateCommand regenerates daily summaries for one date.
type AggregateCommand struct {
	globals *GlobalFlags

	Date string `long:"date" short:"d" description:"Date to aggregate (YYYY-MM-DD, default yesterday UTC)"`
}

// Execute runs the aggregate subcommand.
func (c *AggregateCommand) Execute(args []string) error {
	date := c.Date
	if date == "" {
		date = time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("--date must be YYYY-MM-DD")
	}

	var resp models.AggregateResponse
	err := c.globals.doJSON("POST", "/admin/aggregate", models.AggregateRequest{
		Date: date,
	}, &resp)
	if err != nil {
		return err
	}

	fmt.Printf("aggregated %s: %d partition(s) in %dms\n",
		resp.Date, resp.PartitionsProcessed, resp.DurationMS)
	return nil
}

// CheckCommand runs the consistency self-check.
type CheckCommand struct {
	globals *GlobalFlags
}

// Execute runs the check subcommand. Findings are reported, not repaired.
func (c *CheckCommand) Execute(args []string) error {
	var resp models.ConsistencyResponse
	if err := c.globals.doJSON("GET", "/admin/consistency", nil, &resp); err != nil {
		return err
	}

	if resp.Clean {
		fmt.Println("consistency check: clean")
		return nil
	}
	for _, id := range resp.NegativeNetDeltas {
		fmt.Printf("negative net delta: event %s\n", id)
	}
	for _, id := range resp.EventsMissingDerived {
		fmt.Printf("missing derived record: event %s\n", id)
	}
	return fmt.Errorf("consistency check found %d violation(s)",
		len(resp.NegativeNetDeltas)+len(resp.EventsMissingDerived))
}
