package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stupiduntilnot/llmshell/internal/openai"
)

var modelsRefresh bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the model catalog",
	Long: `Prints the models llmshell knows about. The simulator model is marked
with *, the planner model with +. With --refresh the provider's live model
list is merged in first.`,
	RunE: runModels,
}

func init() {
	modelsCmd.Flags().BoolVar(&modelsRefresh, "refresh", false, "merge the provider's live model list into the catalog")
}

func runModels(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalog()
	if err != nil {
		return err
	}
	if modelsRefresh {
		if cfg.Provider != "openai" {
			return errors.New("--refresh needs the openai provider")
		}
		client := openai.NewClient(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.RequestTimeout())
		if err := catalog.MergeLive(client); err != nil {
			return fmt.Errorf("refresh models: %w", err)
		}
	}

	simulator := catalog.Resolve(cfg.Model)
	planner := catalog.Resolve(cfg.PlannerModel)
	for _, info := range catalog.List() {
		marker := " "
		switch info.Name {
		case simulator:
			marker = "*"
		case planner:
			marker = "+"
		}
		line := marker + " " + info.Name
		if len(info.Aliases) > 0 {
			line += " (" + strings.Join(info.Aliases, ", ") + ")"
		}
		if info.ContextWindow > 0 {
			line += fmt.Sprintf("  context=%d max_output=%d", info.ContextWindow, info.MaxOutput)
		}
		fmt.Fprintln(cmd.OutOrStdout(), line)
	}
	return nil
}
