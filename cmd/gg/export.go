package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/genglossary/genglossary/internal/export"
	"github.com/genglossary/genglossary/internal/storage/sqlite"
)

func newExportCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "export <project>",
		Short: "Export a project's glossary as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			p, err := reg.GetByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			db, err := sqlite.Open(p.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			var doc string
			err = db.WithConn(cmd.Context(), func(c *sqlite.Conn) error {
				doc, err = export.Markdown(cmd.Context(), c, p.Name)
				return err
			})
			if err != nil {
				return err
			}

			if outPath == "" {
				fmt.Print(doc)
				return nil
			}
			if err := os.WriteFile(outPath, []byte(doc), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "output", "o", "", "write to file instead of stdout")
	return cmd
}
