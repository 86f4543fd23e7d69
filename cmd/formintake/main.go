package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"formintake/config"
	"formintake/core/appbootstrap"
	"formintake/core/utils"
)

func main() {
	configPath := flag.String("config", os.Getenv("FORMINTAKE_CONFIG"), "path to YAML config file")
	showEnv := flag.Bool("env", false, "print supported environment variables and exit")
	flag.Parse()

	if *showEnv {
		fmt.Println(config.Usage())
		return
	}

	logger := utils.NewLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := appbootstrap.Run(ctx, *configPath, logger); err != nil {
		logger.Errorf("formintake: %v", err)
		stop()
		os.Exit(1)
	}
	logger.Printf("formintake stopped")
}
