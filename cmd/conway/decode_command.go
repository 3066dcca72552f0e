package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"conway-token-lab/internal/export"
	"conway-token-lab/internal/gallery"
)

func newDecodeCommand(ctx *commandContext) *cobra.Command {
	var uri string
	var outDir string
	var bundlePath string
	var fromBundle string

	cmd := &cobra.Command{
		Use:   "decode [id]",
		Short: "Decode a token-URI into data.json, image.svg and animated.html",
		Long: `Decode a token-URI into its metadata and assets.

The token-URI is read from the contract for the given id, taken verbatim from
--uri, or restored from a bundle written earlier with --bundle.`,
		Example: `  conway decode 0
  conway decode --uri "$(conway token-uri 0)" --out ./token0
  conway decode 0 --bundle token0.cbor
  conway decode --from-bundle token0.cbor --out ./restored`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = cfg.Export.Dir
			}

			var tok *gallery.Token
			switch {
			case fromBundle != "":
				b, err := export.ReadBundle(fromBundle)
				if err != nil {
					return err
				}
				meta, image, animation, err := b.Decoded()
				if err != nil {
					return err
				}
				tok = &gallery.Token{ID: b.TokenID, TokenURI: b.TokenURI, Metadata: meta, Image: image, Animation: animation}
			case uri != "":
				if len(args) > 0 {
					return errors.New("give either a token id or --uri, not both")
				}
				if bundlePath != "" {
					return errors.New("--bundle needs a token id; a bare --uri does not carry one")
				}
				if tok, err = gallery.DecodeToken(0, uri); err != nil {
					return err
				}
			case len(args) == 1:
				id, err := parseTokenID(args[0])
				if err != nil {
					return err
				}
				svc, err := ctx.service(cmd.Context())
				if err != nil {
					return err
				}
				if tok, err = svc.Token(cmd.Context(), id); err != nil {
					return err
				}
			default:
				return errors.New("a token id, --uri or --from-bundle is required")
			}

			written, err := export.WriteFiles(outDir, tok.Metadata, tok.Image, tok.Animation)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range written {
				fmt.Fprintln(out, "Wrote", path)
			}

			if bundlePath != "" {
				b, err := export.NewBundle(cfg.Contract().Hex(), tok.ID, tok.TokenURI, tok.Metadata, tok.Image, tok.Animation)
				if err != nil {
					return err
				}
				if err := export.WriteBundle(bundlePath, b); err != nil {
					return err
				}
				fmt.Fprintln(out, "Wrote", filepath.Clean(bundlePath))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&uri, "uri", "", "Decode this token-URI instead of reading one from the contract")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "Output directory (defaults to export.dir)")
	cmd.Flags().StringVar(&bundlePath, "bundle", "", "Also write a CBOR bundle to this path")
	cmd.Flags().StringVar(&fromBundle, "from-bundle", "", "Decode a previously written bundle")
	return cmd
}
