package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vrx/station/pkg/discovery"
)

var discoverTimeout time.Duration

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Browse for ground stations on the local network",
	RunE: func(cmd *cobra.Command, args []string) error {
		resolver, err := discovery.NewResolver()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), discoverTimeout)
		defer cancel()

		ch, err := resolver.Browse(ctx)
		if err != nil {
			return err
		}

		found := 0
		for info := range ch {
			found++
			fmt.Printf("%s\n  host: %s  port: %d  ips: %v\n", info.InstanceName, info.HostName, info.Port, info.IPs)
			for k, v := range info.Meta {
				fmt.Printf("  %s: %s\n", k, v)
			}
		}
		if found == 0 {
			fmt.Println("No stations found.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(discoverCmd)
	discoverCmd.Flags().DurationVarP(&discoverTimeout, "timeout", "t", 3*time.Second, "How long to browse")
}
