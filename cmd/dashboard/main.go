package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"github.com/ecobalance/dashboard/internal/dashboard/app"
)

func main() {
	flags := pflag.NewFlagSet("dashboard", pflag.ContinueOnError)
	configPath := flags.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file (env: CONFIG_FILE)")
	showVersion := flags.Bool("version", false, "print the version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatalf("invalid arguments: %v", err)
	}

	if *showVersion {
		fmt.Println(app.BuildVersion)
		return
	}

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
