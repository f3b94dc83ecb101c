package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var version string
var commitHash string
var buildDate string

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tunnelsink",
	Long:  `All software has versions. This is tunnelsink's.`,
	Run: func(cmd *cobra.Command, args []string) {
		printTunnelsinkVersion()
	},
}

func init() {
	RootCmd.AddCommand(versionCmd)
}

func printTunnelsinkVersion() {
	fmt.Printf("tunnelsink Version: %s, %s/%s, BuildDate: %s, Commit: %s\n",
		version, runtime.GOOS, runtime.GOARCH, buildDate, commitHash)
}
