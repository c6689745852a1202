package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesofproject/sof-lmdk/internal/types"
	"github.com/thesofproject/sof-lmdk/pkg/host"
	"github.com/thesofproject/sof-lmdk/pkg/image"
	"github.com/thesofproject/sof-lmdk/pkg/module"
	"github.com/thesofproject/sof-lmdk/pkg/module/passthrough"
)

func loadCmd() *cobra.Command {
	var (
		uuidStr string
		pubPath string
	)

	cmd := &cobra.Command{
		Use:   "load <image>",
		Short: "test-load modules through the hosted loader",
		Long: "Load verifies the image and walks each selected module through\n" +
			"the full loading lifecycle: version gate, entry point, table\n" +
			"binding and Init. Modules load against the built-in registry,\n" +
			"which carries the passthrough reference module.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := image.Open(args[0])
			if err != nil {
				return err
			}

			cfg := host.Config{Registry: newRegistry(), Logger: logger}
			if pubPath != "" {
				if cfg.TrustedKey, err = image.LoadPublicKey(pubPath); err != nil {
					return err
				}
			}
			h, err := host.New(cfg)
			if err != nil {
				return err
			}

			targets := img.Manifests
			if uuidStr != "" {
				uuid, err := types.ParseUUID(uuidStr)
				if err != nil {
					return err
				}
				m, err := img.Module(uuid)
				if err != nil {
					return err
				}
				targets = targets[:0:0]
				targets = append(targets, m)
			}

			for _, m := range targets {
				hd, err := h.LoadModule(img, m.UUID, nil)
				if err != nil {
					return fmt.Errorf("load %s: %w", m.Name, err)
				}
				fmt.Printf("%s: %s (instance %d)\n", m.Name, hd.State(), hd.InstanceID())
				if err := hd.Release(); err != nil {
					return fmt.Errorf("release %s: %w", m.Name, err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&uuidStr, "module", "m", "", "load only the module with this uuid")
	cmd.Flags().StringVar(&pubPath, "pub", "", "trusted public key for image verification")
	return cmd
}

// newRegistry builds the tool's entry-point registry. Only the passthrough
// reference module ships with the kit.
func newRegistry() *module.Registry {
	reg := module.NewRegistry()
	if err := passthrough.Register(reg); err != nil {
		panic(err)
	}
	return reg
}
