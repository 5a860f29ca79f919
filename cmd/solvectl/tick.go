package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"lukechampine.com/uint128"

	"github.com/solve3fi/contracts/internal/pricing"
	"github.com/solve3fi/contracts/internal/pricing/solvemath"
)

func newTickCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Convert between ticks, sqrt prices and prices",
	}
	cmd.PersistentFlags().Uint8("decimals-a", 0, "decimals of token A")
	cmd.PersistentFlags().Uint8("decimals-b", 0, "decimals of token B")
	cmd.PersistentFlags().Uint16("tick-spacing", 0, "also print the tick array start for this spacing")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "to-price <tick>",
			Short: "Sqrt price and price at a tick",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				tick, err := strconv.ParseInt(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid tick: %w", err)
				}
				sqrtPrice, err := solvemath.SqrtPriceFromTick(int32(tick))
				if err != nil {
					return err
				}
				return printTick(cmd, int32(tick), sqrtPrice)
			},
		},
		&cobra.Command{
			Use:   "from-sqrt-price <sqrt-price-x64>",
			Short: "Tick at a Q64.64 sqrt price",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sqrtPrice, err := uint128.FromString(args[0])
				if err != nil {
					return fmt.Errorf("invalid sqrt price: %w", err)
				}
				tick, err := solvemath.TickFromSqrtPrice(sqrtPrice)
				if err != nil {
					return err
				}
				return printTick(cmd, tick, sqrtPrice)
			},
		},
		&cobra.Command{
			Use:   "from-price <price>",
			Short: "Sqrt price and tick for a price of token A in token B",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				price, err := pricing.ParsePrice(args[0])
				if err != nil {
					return err
				}
				decA, decB := decimalsFlags(cmd)
				sqrtPrice, err := pricing.SqrtPriceFromPrice(price, decA, decB)
				if err != nil {
					return err
				}
				tick, err := solvemath.TickFromSqrtPrice(sqrtPrice)
				if err != nil {
					return err
				}
				return printTick(cmd, tick, sqrtPrice)
			},
		},
	)
	return cmd
}

func decimalsFlags(cmd *cobra.Command) (a, b uint8) {
	a, _ = cmd.Flags().GetUint8("decimals-a")
	b, _ = cmd.Flags().GetUint8("decimals-b")
	return a, b
}

func printTick(cmd *cobra.Command, tick int32, sqrtPrice uint128.Uint128) error {
	decA, decB := decimalsFlags(cmd)
	spacing, _ := cmd.Flags().GetUint16("tick-spacing")
	writeTick(cmd.OutOrStdout(), tick, sqrtPrice, decA, decB, spacing)
	return nil
}

func writeTick(w io.Writer, tick int32, sqrtPrice uint128.Uint128, decA, decB uint8, spacing uint16) {
	fmt.Fprintf(w, "tick:        %d\n", tick)
	fmt.Fprintf(w, "sqrt_price:  %s\n", sqrtPrice)
	fmt.Fprintf(w, "price:       %s\n", pricing.PriceFromSqrtPrice(sqrtPrice, decA, decB).Text('g', 12))
	if spacing > 0 {
		fmt.Fprintf(w, "array_start: %d\n", solvemath.TickArrayStartIndex(tick, spacing))
		fmt.Fprintf(w, "usable:      %t\n", solvemath.IsUsableTick(tick, spacing))
	}
}
