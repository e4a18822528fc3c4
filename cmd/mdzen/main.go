package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/arran4/mdzen/internal/cli"
)

func main() {
	cmd := cli.NewCmdRoot()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "mdzen: "+err.Error())
		os.Exit(1)
	}
}
