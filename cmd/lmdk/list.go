package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thesofproject/sof-lmdk/pkg/image"
)

func listCmd() *cobra.Command {
	var catalogPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded builds, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := image.OpenCatalog(catalogPath)
			if err != nil {
				return err
			}
			defer cat.Close()

			records, err := cat.Builds()
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("no builds recorded")
				return nil
			}

			for _, rec := range records {
				fmt.Printf("%s  %-16s %s  [%s]\n",
					rec.CreatedAt.Format("2006-01-02 15:04:05"),
					rec.Library, rec.Digest, strings.Join(rec.Modules, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&catalogPath, "catalog", "lmdk_builds.db", "catalog database path")
	return cmd
}
