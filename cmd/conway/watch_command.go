package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"conway-token-lab/internal/chain"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var from string
	var to string
	var mintsOnly bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream Transfer events of the contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ctx.stubMode() {
				return errors.New("watch needs a live node; it is not available with --stub")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Chain.WSEndpoint == "" {
				return errors.New("chain.ws_endpoint is required (or set CONWAY_WS_ENDPOINT)")
			}

			filter := chain.TransferFilter{Contract: cfg.Contract()}
			if mintsOnly {
				zero := common.Address{}
				filter.From = &zero
			}
			if from != "" {
				addr, err := ctx.account(from)
				if err != nil {
					return err
				}
				filter.From = &addr
			}
			if to != "" {
				addr, err := ctx.account(to)
				if err != nil {
					return err
				}
				filter.To = &addr
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := chain.NewWSClient(runCtx, cfg.Chain.WSEndpoint, nil, ctx.log().Named("ws"))
			if err != nil {
				return err
			}
			defer client.Close()

			return watchTransfers(runCtx, cmd.OutOrStdout(), client, filter)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Only transfers from this address")
	cmd.Flags().StringVar(&to, "to", "", "Only transfers to this address")
	cmd.Flags().BoolVar(&mintsOnly, "mints", false, "Only mints")
	return cmd
}

func watchTransfers(ctx context.Context, out io.Writer, sub chain.TransferSubscriber, filter chain.TransferFilter) error {
	events, err := sub.SubscribeTransfers(ctx, filter)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			kind := "transfer"
			switch {
			case ev.Removed:
				kind = "removed"
			case ev.IsMint():
				kind = "mint"
			}
			fmt.Fprintf(out, "block %d tx %s token %d %s -> %s (%s)\n",
				ev.BlockNumber, ev.TxHash.Hex(), ev.TokenID, ev.From.Hex(), ev.To.Hex(), kind)
		}
	}
}
