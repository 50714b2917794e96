package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/genglossary/genglossary/internal/config"
	"github.com/genglossary/genglossary/internal/registry"
	"github.com/genglossary/genglossary/internal/types"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}
	cmd.AddCommand(
		newProjectCreateCmd(),
		newProjectListCmd(),
		newProjectCloneCmd(),
		newProjectDeleteCmd(),
	)
	return cmd
}

func openRegistry() (*config.Config, *registry.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(cfg.Home, 0o755); err != nil {
		return nil, nil, err
	}
	reg, err := registry.Open(cfg.RegistryPath())
	if err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}

func newProjectCreateCmd() *cobra.Command {
	var docRoot, provider, model, baseURL string

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			p, err := reg.Create(cmd.Context(), &types.Project{
				Name:        args[0],
				DocRoot:     docRoot,
				DBPath:      registry.DefaultDBPath(cfg.ProjectsDir(), args[0]),
				LLMProvider: provider,
				LLMModel:    model,
				LLMBaseURL:  baseURL,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created project %s (id %d) at %s\n", p.Name, p.ID, p.DBPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&docRoot, "doc-root", "", "directory of source documents")
	cmd.Flags().StringVar(&provider, "llm-provider", "", "llm provider override for this project")
	cmd.Flags().StringVar(&model, "llm-model", "", "llm model override for this project")
	cmd.Flags().StringVar(&baseURL, "llm-base-url", "", "llm base url override for this project")
	return cmd
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			projects, err := reg.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tDOC ROOT\tLAST RUN")
			for _, p := range projects {
				lastRun := "-"
				if p.LastRunAt != nil {
					lastRun = p.LastRunAt.Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Status, p.DocRoot, lastRun)
			}
			return tw.Flush()
		},
	}
}

func newProjectCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <name> <new-name>",
		Short: "Clone a project's settings into a new project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, reg, err := openRegistry()
			if err != nil {
				return err
			}
			defer func() { _ = reg.Close() }()

			src, err := reg.GetByName(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			clone, err := reg.Clone(cmd.Context(), src.ID, args[1], registry.DefaultDBPath(cfg.ProjectsDir(), args[1]))
			if err != nil {
				return err
			}
			fmt.Printf("cloned %s into %s (id %d)\n", src.Name, clone.Name, clone.ID)
			return nil
		},
	}
}

func newProjectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a project from the registry (keeps its database file)",
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
			if err := reg.Delete(cmd.Context(), p.ID); err != nil {
				return err
			}
			fmt.Printf("deleted project %s (database file kept at %s)\n", p.Name, p.DBPath)
			return nil
		},
	}
}
