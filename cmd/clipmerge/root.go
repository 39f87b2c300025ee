package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var configFlag string
	var rootFlag string
	var watchFlag bool

	ctx := newCommandContext(&configFlag, &rootFlag)

	rootCmd := &cobra.Command{
		Use:   "clipmerge [scope]",
		Short: "Consolidate recorded video fragments into one file per day",
		Long: "clipmerge merges every fragment under each category of the highlights root into\n" +
			"combined/<YYYY.MM.DD> files and moves the originals into processed/.\n" +
			"Pass a folder name to merge that sub-folder of every category instead.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			scope := ""
			if len(args) == 1 {
				scope = args[0]
			}
			var watchOverride *bool
			if cmd.Flags().Changed("watch") {
				watchOverride = &watchFlag
			}
			return runConsolidate(cmd, ctx, scope, watchOverride)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&rootFlag, "root", "", "Highlights root (overrides paths.root)")
	rootCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Keep running and consolidate whenever new fragments appear")

	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))

	return rootCmd
}
