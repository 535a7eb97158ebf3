package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "entityflowctl",
	Short: "entityflowctl is a CLI for operating an entityflow deployment",
	Long:  "A developer-focused terminal tool for managing admin accounts and the shared cache.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config.yaml (default $ENTITYFLOW_CONFIG or none)")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile == "" {
		cfgFile = os.Getenv("ENTITYFLOW_CONFIG")
	}
	viper.AutomaticEnv()
}
