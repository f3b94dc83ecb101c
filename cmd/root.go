// Copyright © 2016 Tobias Wellnitz, DH1TW <Tobias.Wellnitz@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "tunnelsink",
	Short: "Virtual audio sink which streams its audio over a nats broker",
	Long: `tunnelsink hosts a virtual audio sink. Everything played on the sink
is encoded (opus or raw pcm) and published on a nats subject, from where it
can be recorded or played back on a remote machine.`,
}

// Execute adds all child commands to the root command sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tunnelsink.yaml)")

	RootCmd.PersistentFlags().StringP("broker-url", "u", "localhost", "Broker URL")
	RootCmd.PersistentFlags().IntP("broker-port", "p", 4222, "Broker Port")
	RootCmd.PersistentFlags().StringP("password", "P", "", "NATS Password")
	RootCmd.PersistentFlags().StringP("username", "U", "", "NATS Username")
	RootCmd.PersistentFlags().StringP("subject", "s", "", "NATS subject of the audio stream (default tunnelsink.<sink-name>.audio)")
	RootCmd.PersistentFlags().String("sink-name", "tunnel_sink", "name of the tunnel sink")

	viper.BindPFlag("nats.broker-url", RootCmd.PersistentFlags().Lookup("broker-url"))
	viper.BindPFlag("nats.broker-port", RootCmd.PersistentFlags().Lookup("broker-port"))
	viper.BindPFlag("nats.password", RootCmd.PersistentFlags().Lookup("password"))
	viper.BindPFlag("nats.username", RootCmd.PersistentFlags().Lookup("username"))
	viper.BindPFlag("nats.subject", RootCmd.PersistentFlags().Lookup("subject"))
	viper.BindPFlag("tunnel.sink-name", RootCmd.PersistentFlags().Lookup("sink-name"))
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".tunnelsink")
	}

	viper.SetEnvPrefix("tunnelsink")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// readConfig tries to read the config file. A missing config file is not
// an error.
func readConfig() {
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	} else {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || strings.Contains(err.Error(), "Not Found in") {
			fmt.Println("no config file found")
		} else {
			fmt.Fprintf(os.Stderr, "Error parsing config file %v: %v\n",
				viper.ConfigFileUsed(), err)
			os.Exit(1)
		}
	}
}

// subject returns the nats subject of the tunnel sink's audio stream.
func subject() string {
	if s := viper.GetString("nats.subject"); s != "" {
		return s
	}
	return fmt.Sprintf("tunnelsink.%s.audio", viper.GetString("tunnel.sink-name"))
}

// exit prints the error to stderr and returns with exit code 1
func exit(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
