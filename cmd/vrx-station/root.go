package main

import (
	"os"

	"github.com/spf13/cobra"

	"vrx/station/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "vrx-station",
	Short: "FPV Video Ground Station",
	Long:  `Receives a compressed video stream from a companion transmitter over TCP and decodes it into displayable frames.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Sugar.Error(err)
		os.Exit(1)
	}
}
