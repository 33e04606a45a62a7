/*
cmb-broker runs the message broker described by a configuration file:

	$ cmb-broker -config broker.yaml
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dermesser/clustermsg/broker"
	"github.com/dermesser/clustermsg/config"
	"github.com/dermesser/clustermsg/log"
	smgr "github.com/dermesser/clustermsg/securitymanager"
)

func securityManager(cfg *config.Config) (*smgr.BrokerSecurityManager, error) {
	if !cfg.Security.Enabled {
		return nil, nil
	}
	mgr, err := smgr.NewBrokerSecurityManager()
	if err != nil {
		return nil, err
	}
	if err = mgr.LoadKeys(cfg.Security.PublicKeyFile, cfg.Security.PrivateKeyFile); err != nil {
		return nil, err
	}
	mgr.AddPeerKeys(cfg.Security.AllowedClientKeys...)
	return mgr, nil
}

func run(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err = cfg.ApplyLogging(); err != nil {
		return err
	}

	mgr, err := securityManager(&cfg)
	if err != nil {
		return fmt.Errorf("could not set up security: %w", err)
	}
	defer mgr.StopManager()

	b, err := broker.NewBroker(cfg.Size, cfg.BindAddresses(), mgr)
	if err != nil {
		return err
	}
	defer b.Close()

	b.Start()
	log.Log(log.LOGLEVEL_INFO, "Broker for", cfg.Size, "ranks listening on", cfg.BindAddresses(),
		"log level", log.LoglevelString(log.GetLoglevel()))

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signals
	log.Log(log.LOGLEVEL_INFO, "Received", sig.String(), ", shutting down")
	return nil
}

func main() {
	var path string
	flag.StringVar(&path, "config", "clustermsg.yaml", "Configuration file; defaults are used if it does not exist.")
	flag.Parse()

	if err := run(path); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
