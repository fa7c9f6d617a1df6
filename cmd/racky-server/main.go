/*
Copyright 2021 k0s authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
// Command racky-server hosts the HTTP façade: it loads server config,
// builds the Core registry, auto-starts every program asking for it, and
// serves the façade until a termination signal arrives.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/DervexDev/racky/internal/config"
	"github.com/DervexDev/racky/internal/core"
	"github.com/DervexDev/racky/internal/httpapi"
	"github.com/DervexDev/racky/internal/logsink"
	"github.com/DervexDev/racky/internal/paths"
)

func main() {
	home := flag.String("home", "", "override the user home directory the .racky tree is created under (defaults to the current user's home)")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	root, err := paths.NewRoot(*home)
	if err != nil {
		log.Fatalf("failed to resolve racky home: %v", err)
	}
	for _, dir := range []string{root.Bin(), root.Config(), root.Logs()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create %s: %v", dir, err)
		}
	}

	serverConfigPath := filepath.Join(root.Config(), paths.Reserved+".toml")
	cfg := config.LoadServerConfig(log, serverConfigPath)

	serverSink, err := logsink.New(filepath.Join(root.Logs(), paths.Reserved), cfg.LogSizeLimit, cfg.LogFileLimit)
	if err != nil {
		log.Fatalf("failed to open server log sink: %v", err)
	}

	registry := core.New(root, log)
	started, total := registry.StartAll(cfg.LogSizeLimit, cfg.LogFileLimit)
	log.Infof("auto-started %d/%d programs", started, total)

	server := httpapi.New(registry, root, log, cfg, serverSink)

	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	signal.Ignore(syscall.SIGHUP, syscall.SIGPIPE)

	select {
	case err := <-errCh:
		log.Errorf("façade stopped unexpectedly: %v", err)
	case sig := <-sigCh:
		log.Infof("received %s, shutting down", sig)
	}

	for _, sup := range registry.Programs() {
		if err := sup.Stop(); err != nil {
			log.Warnf("failed to stop %s during shutdown: %v", sup.Name, err)
		}
	}
}
