package main

import (
	"fmt"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/solve3fi/contracts/internal/state"
)

func newAddressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Derive record addresses",
	}
	cmd.PersistentFlags().String("namespace", "", "config namespace (default: engine.namespace from the config)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "config",
			Short: "Address of the global config",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ns, err := namespaceFlag(cmd)
				if err != nil {
					return err
				}
				return printAddress(cmd, func() (solana.PublicKey, uint8, error) {
					return state.DeriveConfigAddress(ns)
				})
			},
		},
		&cobra.Command{
			Use:   "fee-tier <tick-spacing>",
			Short: "Address of a fee tier",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				configKey, err := configAddress(cmd)
				if err != nil {
					return err
				}
				spacing, err := parseTickSpacing(args[0])
				if err != nil {
					return err
				}
				return printAddress(cmd, func() (solana.PublicKey, uint8, error) {
					return state.DeriveFeeTierAddress(configKey, spacing)
				})
			},
		},
		&cobra.Command{
			Use:   "pool <BASE-QUOTE> <tick-spacing>",
			Short: "Address of a pool, with token symbols from the registry",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd)
				if err != nil {
					return err
				}
				a, b, swapped, err := cfg.Registry().ParsePair(args[0])
				if err != nil {
					return err
				}
				spacing, err := parseTickSpacing(args[1])
				if err != nil {
					return err
				}
				configKey, err := configAddress(cmd)
				if err != nil {
					return err
				}
				if swapped {
					fmt.Fprintf(cmd.ErrOrStderr(), "note: token A is %s, token B is %s\n", a.Symbol, b.Symbol)
				}
				return printAddress(cmd, func() (solana.PublicKey, uint8, error) {
					return state.DerivePoolAddress(configKey, a.Mint, b.Mint, spacing)
				})
			},
		},
		&cobra.Command{
			Use:   "tick-array <pool> <start-tick-index>",
			Short: "Address of a pool's tick array",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				pool, err := solana.PublicKeyFromBase58(args[0])
				if err != nil {
					return fmt.Errorf("invalid pool: %w", err)
				}
				start, err := strconv.ParseInt(args[1], 10, 32)
				if err != nil {
					return fmt.Errorf("invalid start tick index: %w", err)
				}
				return printAddress(cmd, func() (solana.PublicKey, uint8, error) {
					return state.DeriveTickArrayAddress(pool, int32(start))
				})
			},
		},
		&cobra.Command{
			Use:   "position <position-mint>",
			Short: "Address of the position keyed by a position mint",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				mint, err := solana.PublicKeyFromBase58(args[0])
				if err != nil {
					return fmt.Errorf("invalid position mint: %w", err)
				}
				return printAddress(cmd, func() (solana.PublicKey, uint8, error) {
					return state.DerivePositionAddress(mint)
				})
			},
		},
	)
	return cmd
}

func namespaceFlag(cmd *cobra.Command) (string, error) {
	if ns, _ := cmd.Flags().GetString("namespace"); ns != "" {
		return ns, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.Engine.Namespace, nil
}

func configAddress(cmd *cobra.Command) (solana.PublicKey, error) {
	ns, err := namespaceFlag(cmd)
	if err != nil {
		return solana.PublicKey{}, err
	}
	key, _, err := state.DeriveConfigAddress(ns)
	return key, err
}

func parseTickSpacing(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid tick spacing %q", s)
	}
	return uint16(v), nil
}

func printAddress(cmd *cobra.Command, derive func() (solana.PublicKey, uint8, error)) error {
	key, bump, err := derive()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (bump %d)\n", key, bump)
	return nil
}
