package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/solve3fi/contracts/internal/engine"
	"github.com/solve3fi/contracts/internal/platform/observability"
	"github.com/solve3fi/contracts/internal/scenario"
)

func newQuoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quote <scenario-file>",
		Short: "Quote a swap against the state a scenario leaves behind",
		Long: "Replay a scenario in memory, then quote a swap on one of its pools " +
			"without changing any state.",
		Args: cobra.ExactArgs(1),
		RunE: quote,
	}
	cmd.Flags().String("pool", "", "scenario pool name (default: the only pool)")
	cmd.Flags().String("sell", "", "symbol of the token sold")
	cmd.Flags().Uint64("amount", 0, "input amount, or output amount with --exact-out")
	cmd.Flags().Bool("exact-out", false, "amount is the exact output")
	_ = cmd.MarkFlagRequired("sell")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func quote(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	sc, err := scenario.Load(args[0])
	if err != nil {
		return err
	}

	ctx := context.Background()
	r := &scenario.Runner{
		Registry: cfg.Registry(),
		Logger:   observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format),
	}
	rep, err := r.Run(ctx, sc)
	if err != nil {
		return err
	}

	pool, _ := cmd.Flags().GetString("pool")
	if pool == "" {
		names := rep.Session.PoolNames()
		if len(names) != 1 {
			return fmt.Errorf("scenario has %d pools, choose one with --pool", len(names))
		}
		pool = names[0]
	}
	sell, _ := cmd.Flags().GetString("sell")
	amount, _ := cmd.Flags().GetUint64("amount")
	exactOut, _ := cmd.Flags().GetBool("exact-out")

	res, err := rep.Session.Quote(ctx, pool, sell, amount, exactOut)
	if err != nil {
		return err
	}
	writeQuote(cmd.OutOrStdout(), res)
	return nil
}

func writeQuote(w io.Writer, res engine.SwapResult) {
	fmt.Fprintf(w, "amount_in:       %d\n", res.AmountIn)
	fmt.Fprintf(w, "amount_out:      %d\n", res.AmountOut)
	fmt.Fprintf(w, "lp_fee:          %d\n", res.LPFee)
	fmt.Fprintf(w, "protocol_fee:    %d\n", res.ProtocolFee)
	fmt.Fprintf(w, "ticks_crossed:   %d\n", res.TicksCrossed)
	fmt.Fprintf(w, "next_tick:       %d\n", res.NextTick)
	fmt.Fprintf(w, "next_sqrt_price: %s\n", res.NextSqrtPrice)
}
