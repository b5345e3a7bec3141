/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	releaseVersion = "0.1.0"
)

func main() {
	// Optional .env for MATCHUP_* vars; absence is fine.
	_ = godotenv.Load()

	cfg := &Config{}
	cobra.CheckErr(newCmd(cfg).Execute())
}
