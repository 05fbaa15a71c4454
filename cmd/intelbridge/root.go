// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 IntelBridge Contributors

package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root intelbridge command with all subcommands
// registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "intelbridge",
		Short:         "IntelBridge — conversational threat intelligence service",
		Long:          "IntelBridge answers threat intelligence questions by driving an LLM over a read-only graph of actors, malware, vulnerabilities, and reports.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newServeCmd(),
		newVersionCmd(),
	)

	return root
}
