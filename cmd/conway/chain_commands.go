package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"conway-token-lab/internal/mint"
)

func newBalanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [address]",
		Short: "Print the number of tokens held by an address",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.account(optionalArg(args))
			if err != nil {
				return err
			}
			svc, err := ctx.service(cmd.Context())
			if err != nil {
				return err
			}
			balance, err := svc.Balance(cmd.Context(), owner)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Balance of %s is %d\n", owner.Hex(), balance)
			return nil
		},
	}
}

func newOwnedCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "owned [address]",
		Short: "List the token ids held by an address",
		Long: `List the token ids held by an address.

The contract has no enumeration API, so ids are discovered by probing ownerOf
from 0 upwards until the balance is accounted for or discovery.max_probes is
reached.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := ctx.account(optionalArg(args))
			if err != nil {
				return err
			}
			svc, err := ctx.service(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := svc.Owned(cmd.Context(), owner)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(cmd, map[string]any{"owner": owner.Hex(), "token_ids": ids})
			}
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newTokenURICommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "token-uri <id>",
		Short: "Print the raw token-URI of a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTokenID(args[0])
			if err != nil {
				return err
			}
			svc, err := ctx.service(cmd.Context())
			if err != nil {
				return err
			}
			uri, err := svc.TokenURI(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	}
}

func newMintCommand(ctx *commandContext) *cobra.Command {
	var to string
	var lineLength int64
	var cells string

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Mint a pattern and wait for it to be final",
		Example: `  conway mint --line-length 8 --cells 255,255,255
  conway mint --to 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 --line-length 3 --cells 0,24,60`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			recipient, err := ctx.account(to)
			if err != nil {
				return err
			}
			values, err := mint.ParseCells(cells)
			if err != nil {
				return err
			}
			svc, err := ctx.service(cmd.Context())
			if err != nil {
				return err
			}

			receipt, err := svc.Mint(cmd.Context(), recipient, lineLength, values)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Minted tokens to", recipient.Hex())
			fmt.Fprintln(out, "Transaction hash:", receipt.TxHash.Hex())
			fmt.Fprintln(out, "Block:", receipt.BlockNumber)
			for _, id := range receipt.TokenIDs {
				fmt.Fprintln(out, "Token id:", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Recipient address (defaults to the signer)")
	cmd.Flags().Int64Var(&lineLength, "line-length", 8, "Pattern line length")
	cmd.Flags().StringVar(&cells, "cells", "", "Three comma-separated cell bytes, e.g. 255,255,255")
	_ = cmd.MarkFlagRequired("cells")
	return cmd
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func parseTokenID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q", raw)
	}
	return id, nil
}
