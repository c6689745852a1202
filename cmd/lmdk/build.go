package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thesofproject/sof-lmdk/pkg/image"
	"github.com/thesofproject/sof-lmdk/pkg/libconfig"
)

func buildCmd() *cobra.Command {
	var (
		libraryPath string
		keyPath     string
		outPath     string
		catalogPath string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "assemble and sign a library image",
		Long: "Build reads a library TOML configuration, packs every declared\n" +
			"module binary into one image, and signs it. Any contract violation\n" +
			"(version tag, placement overlap, duplicate uuid) aborts the build\n" +
			"and no image file is produced.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := libconfig.Load(libraryPath)
			if err != nil {
				return err
			}
			key, err := image.LoadPrivateKey(keyPath)
			if err != nil {
				return err
			}

			if outPath == "" {
				outPath = cfg.Library.Name + ".img"
			}

			result, err := image.BuildFile(cfg, key, outPath, image.BuildOptions{Logger: logger})
			if err != nil {
				return err
			}

			var names []string
			for _, m := range result.Manifests {
				names = append(names, m.Name)
				logger.Info("packed", "module", m.Name, "uuid", m.UUID,
					"base", fmt.Sprintf("0x%x", m.BaseAddress), "size", m.RawSize)
			}
			fmt.Printf("built %s: %d modules [%s]\n", outPath, len(names), strings.Join(names, ", "))
			fmt.Printf("digest: %s\n", result.Digest)

			if catalogPath == "" {
				return nil
			}
			cat, err := image.OpenCatalog(catalogPath)
			if err != nil {
				return err
			}
			defer cat.Close()
			return cat.Record(&image.BuildRecord{
				Library:     result.Library,
				Path:        outPath,
				Digest:      result.Digest,
				Fingerprint: result.Fingerprint,
				Modules:     names,
			})
		},
	}

	cmd.Flags().StringVarP(&libraryPath, "library", "l", "", "library TOML configuration (required)")
	cmd.Flags().StringVarP(&keyPath, "key", "k", "lmdk_signing.pem", "Ed25519 signing key")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "image output path (default <library>.img)")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "record the build in this catalog database")
	cmd.MarkFlagRequired("library")
	return cmd
}
