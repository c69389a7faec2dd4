/*
Copyright Attestra Labs. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package main is the authbench command line driver. It runs batches of
// authentication attempts against the framework's authenticator backends and
// prints the aggregated benchmark report.
package main

import (
	"github.com/spf13/cobra"

	"github.com/attestra/authbench/cmd/authbench/runcmd"
	"github.com/attestra/authbench/pkg/common/log"
)

func main() {
	rootCmd := &cobra.Command{
		Use: "authbench",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}

	logger := log.New("authbench/cmd")

	rootCmd.AddCommand(runcmd.Cmd())

	if err := rootCmd.Execute(); err != nil {
		logger.Fatalf("Failed to run authbench: %s", err)
	}
}
