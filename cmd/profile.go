// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Print the resolved drive profile",
	Long: `Print the drive profile that "drive" and "control --sim" would use.

The output is the --config file with the HBRIDGE_* environment overrides
applied, as YAML. It is a valid profile and can be saved as a starting point:

  hbridge profile > drive.yaml
  HBRIDGE_VARIANT=direction-pwm hbridge profile`,
	RunE: runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)
}

func runProfile(cmd *cobra.Command, args []string) error {
	profile, err := loadProfile()
	if err != nil {
		return err
	}
	data, err := profile.Marshal()
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}
