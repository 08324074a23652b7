/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/mautops/casework-gin/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// populateCmd represents the populate command
var populateCmd = &cobra.Command{
	Use:   "populate",
	Short: "Populate queue tasks for a process instance",
	Long: `Read the active user tasks of a process instance from the process engine
and create one OPEN queue task per engine task. Running the command again for
the same instance is safe: tasks that already exist are reported and left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		instanceID, _ := cmd.Flags().GetString("instance")
		definitionKey, _ := cmd.Flags().GetString("definition")

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctr, err := container.NewContainer(cfg, "")
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		result, err := ctr.PopulationService().PopulateQueueTasksForProcessInstance(cmd.Context(), instanceID, definitionKey)
		if err != nil {
			return err
		}

		ctr.Logger().WithFields(logrus.Fields{
			"process_instance_id": instanceID,
			"created":             len(result.Created),
			"existing":            len(result.Existing),
			"skipped":             len(result.Skipped),
			"failed":              len(result.Failed),
		}).Info("population finished")

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		if len(result.Failed) > 0 {
			return fmt.Errorf("%d task(s) failed to populate", len(result.Failed))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(populateCmd)

	populateCmd.Flags().String("instance", "", "Process instance ID")
	populateCmd.Flags().String("definition", "", "Process definition key")
	_ = populateCmd.MarkFlagRequired("instance")
	_ = populateCmd.MarkFlagRequired("definition")
}
