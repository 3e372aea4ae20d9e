package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"botrader/config"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect or clear the persisted trade history",
	Long: `Read the trade history snapshot from the configured backend
(HISTORY_BACKEND=sqlite|redis).

Examples:
  botrader history list --limit 20
  botrader history clear`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List settled trades, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted trade history",
	Args:  cobra.NoArgs,
	RunE:  runHistoryClear,
}

var historyLimit int

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)

	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "maximum number of trades to print (0 = all)")
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	snap, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(snap.TradeHistory) == 0 {
		fmt.Fprintln(out, "no trades")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLOSED\tSYMBOL\tDIR\tAMOUNT\tENTRY\tEXIT\tOUTCOME\tPROFIT")
	for i, e := range snap.TradeHistory {
		if historyLimit > 0 && i >= historyLimit {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.ClosedAt.Local().Format("2006-01-02 15:04:05"),
			e.Symbol, e.Direction,
			e.Amount.StringFixed(2), e.EntryPrice.String(), e.ExitPrice.String(),
			e.Outcome, e.Profit.StringFixed(2))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d trades, saved %s\n", len(snap.TradeHistory), snap.SavedAt.Local().Format(time.RFC3339))
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := openStore(cfg, nil)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()
	if err := store.Clear(ctx); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "trade history cleared")
	return nil
}
