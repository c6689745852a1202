package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesofproject/sof-lmdk/internal/types"
	"github.com/thesofproject/sof-lmdk/pkg/image"
)

func keygenCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "generate an Ed25519 image signing key pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, err := image.GenerateKeyPair(out)
			if err != nil {
				return err
			}
			fmt.Printf("private key: %s\n", out)
			fmt.Printf("public key:  %s.pub\n", out)
			fmt.Printf("fingerprint: %s\n", types.KeyFingerprint(pub))
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "lmdk_signing.pem", "private key output path")
	return cmd
}
