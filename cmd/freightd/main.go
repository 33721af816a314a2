package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/freightdesk/internal/config"
	"github.com/matheus3301/freightdesk/internal/daemon"
	"github.com/matheus3301/freightdesk/internal/instance"
	"go.uber.org/fx"
)

func main() {
	instanceFlag := flag.String("instance", "", "instance name (overrides config default)")
	addrFlag := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	instanceName := instance.Resolve(*instanceFlag)
	if err := instance.ValidateName(instanceName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	p := daemon.Params{InstanceName: instanceName}
	if *addrFlag != "" {
		cfg, err := config.LoadOrDefault(instance.ConfigPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		cfg.ApplyEnv(instance.DotenvPath(), ".env")
		cfg.HTTP.Addr = *addrFlag
		p.Config = cfg
	}

	app := fx.New(
		daemon.Module(p),
	)

	app.Run()
}
