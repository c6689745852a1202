package main

import (
	"crypto/ed25519"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesofproject/sof-lmdk/pkg/image"
)

func verifyCmd() *cobra.Command {
	var pubPath string

	cmd := &cobra.Command{
		Use:   "verify <image>",
		Short: "check an image's digest and signature",
		Long: "Verify recomputes the content digest and checks the Ed25519\n" +
			"signature. Without --pub the image's embedded public key is used,\n" +
			"which proves integrity only; pass a trusted public key to also\n" +
			"prove who signed it.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := image.Open(args[0])
			if err != nil {
				return err
			}

			var pub ed25519.PublicKey
			if pubPath != "" {
				if pub, err = image.LoadPublicKey(pubPath); err != nil {
					return err
				}
			}
			if err := img.Verify(pub); err != nil {
				return err
			}

			fmt.Printf("%s: ok (%d modules, signer %s)\n",
				args[0], img.Header.ModuleCount, img.Header.Fingerprint)
			return nil
		},
	}

	cmd.Flags().StringVar(&pubPath, "pub", "", "trusted public key to verify against")
	return cmd
}
