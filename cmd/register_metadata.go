/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mautops/casework-gin/internal/container"
	"github.com/mautops/casework-gin/internal/service"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// registerMetadataCmd represents the register-metadata command
var registerMetadataCmd = &cobra.Command{
	Use:   "register-metadata",
	Short: "Register workflow metadata from a YAML file",
	Long: `Register the queue mappings of one or more process definitions.
The file may contain several YAML documents separated by "---"; each document
is one registration. Registering an existing key replaces its mappings and
bumps its version.

Example:

  process_definition_key: case-intake
  process_name: Case Intake
  candidate_group_mappings:
    hr-managers: hr-intake-queue
    default: default-queue
  task_queue_mappings:
    - task_definition_key: oversight-review
      queue_name: oversight-queue`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		operator, _ := cmd.Flags().GetString("operator")

		requests, err := readMetadataFile(path)
		if err != nil {
			return err
		}

		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctr, err := container.NewContainer(cfg, "")
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		for _, req := range requests {
			metadata, err := ctr.MetadataService().Register(cmd.Context(), operator, req)
			if err != nil {
				return fmt.Errorf("failed to register %s: %w", req.ProcessDefinitionKey, err)
			}
			ctr.Logger().WithFields(logrus.Fields{
				"process_definition_key": metadata.ProcessDefinitionKey,
				"version":                metadata.Version,
			}).Info("workflow metadata registered")
			fmt.Fprintf(cmd.OutOrStdout(), "%s v%d\n", metadata.ProcessDefinitionKey, metadata.Version)
		}
		return nil
	},
}

// readMetadataFile 读取多文档 YAML 注册文件
func readMetadataFile(path string) ([]*service.RegisterMetadataRequest, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer file.Close()

	var requests []*service.RegisterMetadataRequest
	decoder := yaml.NewDecoder(file)
	for {
		var req service.RegisterMetadataRequest
		err := decoder.Decode(&req)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse metadata file: %w", err)
		}
		if req.ProcessDefinitionKey == "" {
			return nil, fmt.Errorf("document %d: process_definition_key is required", len(requests)+1)
		}
		requests = append(requests, &req)
	}
	if len(requests) == 0 {
		return nil, fmt.Errorf("metadata file %s contains no registrations", path)
	}
	return requests, nil
}

func init() {
	rootCmd.AddCommand(registerMetadataCmd)

	registerMetadataCmd.Flags().String("file", "", "YAML file with workflow metadata")
	registerMetadataCmd.Flags().String("operator", "cli", "Operator recorded in the audit log")
	_ = registerMetadataCmd.MarkFlagRequired("file")
}
