package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"kuner/internal/config"
)

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	var err error
	switch cmd {
	case "model":
		err = modelCommand(flag.Args()[1:])
	case "analyze":
		err = analyzeCommand(flag.Args()[1:])
	case "stats":
		err = statsCommand(flag.Args()[1:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("kuner %s failed: %v", cmd, err)
	}
}

func usage() {
	fmt.Println("Usage: kuner [model list|download|info|remove|verify] | [analyze <text>] | [stats]")
}

func loadConfig() (*config.Config, error) {
	cfgPath, err := config.ConfigPath()
	if err != nil {
		return nil, err
	}
	if err := config.EnsureConfigDir(cfgPath); err != nil {
		return nil, err
	}
	return config.Load(cfgPath)
}
