package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "Manage versioned rebuild configs",
}

var (
	createNotes     string
	createCloneFrom string
	updateNotes     string
)

var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rebuild configs",
	RunE:  runConfigsList,
}

var configsGetCmd = &cobra.Command{
	Use:   "get <config-id>",
	Short: "Show a config with its payload and recent history",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigsGet,
}

var configsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a config, optionally cloning another config's payload",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigsCreate,
}

var configsUpdateCmd = &cobra.Command{
	Use:   "update <config-id>",
	Short: "Update a config's notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigsUpdate,
}

var configsActivateCmd = &cobra.Command{
	Use:   "activate <config-id>",
	Short: "Make a config the single active one",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigsActivate,
}

var configsDeleteCmd = &cobra.Command{
	Use:   "delete <config-id>",
	Short: "Delete an inactive config and its history",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigsDelete,
}

func init() {
	configsCreateCmd.Flags().StringVar(&createNotes, "notes", "", "Free-form notes")
	configsCreateCmd.Flags().StringVar(&createCloneFrom, "clone-from", "", "Config id to clone the payload from")
	configsUpdateCmd.Flags().StringVar(&updateNotes, "notes", "", "Replacement notes")

	configsCmd.AddCommand(configsListCmd)
	configsCmd.AddCommand(configsGetCmd)
	configsCmd.AddCommand(configsCreateCmd)
	configsCmd.AddCommand(configsUpdateCmd)
	configsCmd.AddCommand(configsActivateCmd)
	configsCmd.AddCommand(configsDeleteCmd)
}

type configSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Notes    string `json:"notes"`
	IsActive bool   `json:"isActive"`
}

func runConfigsList(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp struct {
		Configs []configSummary `json:"configs"`
	}
	if err := client.getJSON("/configs", &resp); err != nil {
		return err
	}

	if outputFmt != "table" {
		return printOutput(resp)
	}

	rows := make([][]string, 0, len(resp.Configs))
	for _, c := range resp.Configs {
		rows = append(rows, []string{
			c.ID, c.Name, strconv.FormatBool(c.IsActive), truncate(c.Notes, 40),
		})
	}
	printTable([]string{"ID", "Name", "Active", "Notes"}, rows)
	return nil
}

func runConfigsGet(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp map[string]any
	if err := client.getJSON("/configs/"+args[0], &resp); err != nil {
		return err
	}
	if outputFmt == "table" {
		outputFmt = "yaml" // payloads are too nested for a table
	}
	return printOutput(resp)
}

func runConfigsCreate(cmd *cobra.Command, args []string) error {
	client := newClient()

	body := map[string]string{"name": args[0]}
	if createNotes != "" {
		body["notes"] = createNotes
	}
	if createCloneFrom != "" {
		body["cloneFrom"] = createCloneFrom
	}

	var resp map[string]any
	if err := client.postJSON("/configs", body, &resp); err != nil {
		return err
	}
	fmt.Printf("Created config %v (%v)\n", resp["name"], resp["id"])
	return nil
}

func runConfigsUpdate(cmd *cobra.Command, args []string) error {
	if !cmd.Flags().Changed("notes") {
		return fmt.Errorf("nothing to update: pass --notes (payload fields are edited via the API)")
	}
	client := newClient()

	var resp map[string]any
	if err := client.patchJSON("/configs/"+args[0], map[string]any{"notes": updateNotes}, &resp); err != nil {
		return err
	}
	fmt.Printf("Updated config %v\n", resp["id"])
	return nil
}

func runConfigsActivate(cmd *cobra.Command, args []string) error {
	client := newClient()

	var resp map[string]any
	if err := client.postJSON("/configs/"+args[0]+":activate", nil, &resp); err != nil {
		return err
	}
	fmt.Printf("Config %v is now active\n", resp["name"])
	return nil
}

func runConfigsDelete(cmd *cobra.Command, args []string) error {
	client := newClient()
	if err := client.delete("/configs/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted config %s\n", args[0])
	return nil
}
