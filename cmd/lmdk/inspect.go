package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thesofproject/sof-lmdk/pkg/abi"
	"github.com/thesofproject/sof-lmdk/pkg/image"
)

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <image>",
		Short: "print an image's header and module manifests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := image.Open(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("library:     %s\n", img.Header.Library)
			fmt.Printf("modules:     %d\n", img.Header.ModuleCount)
			fmt.Printf("digest:      %s\n", img.Header.Digest)
			fmt.Printf("fingerprint: %s\n", img.Header.Fingerprint)

			for _, m := range img.Manifests {
				fmt.Printf("\nmodule %s\n", m.Name)
				fmt.Printf("  uuid:        %s\n", m.UUID)
				fmt.Printf("  base:        0x%x\n", m.BaseAddress)
				fmt.Printf("  entry:       0x%x\n", m.EntryPoint)
				fmt.Printf("  size:        %d (compressed %d)\n", m.RawSize, m.PayloadSize)
				fmt.Printf("  instances:   %d\n", m.InstanceMaxCount)
				fmt.Printf("  affinity:    0x%x\n", m.AffinityMask)
				fmt.Printf("  flags:       %s\n", flagString(m.Type))
				fmt.Printf("  hash:        %s\n", m.Hash)
			}
			return nil
		},
	}
}

func flagString(flags uint32) string {
	out := ""
	add := func(name string) {
		if out != "" {
			out += "|"
		}
		out += name
	}
	if flags&abi.LoadTypeLoadable != 0 {
		add("loadable")
	}
	if flags&abi.DomainLL != 0 {
		add("ll")
	}
	if flags&abi.DomainDP != 0 {
		add("dp")
	}
	if flags&abi.StreamCompat != 0 {
		add("stream-compat")
	}
	if out == "" {
		out = "none"
	}
	return out
}
