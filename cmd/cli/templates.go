package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kurihiro0119/bili-comment/internal/templates"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"tpl"},
	Short:   "Manage comment templates",
}

var templatesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List templates",
	Args:  cobra.NoArgs,
	RunE:  runTemplatesList,
}

var templatesCreateCmd = &cobra.Command{
	Use:   "create [name] [content]",
	Short: "Create a template",
	Args:  cobra.ExactArgs(2),
	RunE:  runTemplatesCreate,
}

var templatesUpdateCmd = &cobra.Command{
	Use:   "update [id] [name] [content]",
	Short: "Replace a template's name and content",
	Args:  cobra.ExactArgs(3),
	RunE:  runTemplatesUpdate,
}

var templatesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplatesDelete,
}

func init() {
	templatesCmd.AddCommand(templatesListCmd)
	templatesCmd.AddCommand(templatesCreateCmd)
	templatesCmd.AddCommand(templatesUpdateCmd)
	templatesCmd.AddCommand(templatesDeleteCmd)
}

func runTemplatesList(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	list, err := templates.NewRegistry(e.gw).Fetch(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}

	if outputJSON {
		return printJSON(list)
	}
	if len(list) == 0 {
		fmt.Println("No templates.")
		return nil
	}
	renderTemplates(list)
	return nil
}

func runTemplatesCreate(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	tpl, err := templates.NewRegistry(e.gw).Create(cmd.Context(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	if outputJSON {
		return printJSON(tpl)
	}
	fmt.Printf("Created template %s\n", tpl.ID)
	return nil
}

func runTemplatesUpdate(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	tpl, err := templates.NewRegistry(e.gw).Update(cmd.Context(), args[0], args[1], args[2])
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	if outputJSON {
		return printJSON(tpl)
	}
	fmt.Printf("Updated template %s\n", tpl.ID)
	return nil
}

func runTemplatesDelete(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer e.close()

	if err := templates.NewRegistry(e.gw).Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	fmt.Printf("Deleted template %s\n", args[0])
	return nil
}
