/*
 *    Copyright 2024 Locatible
 *
 *    Licensed under the Apache License, Version 2.0 (the "License");
 *    you may not use this file except in compliance with the License.
 *    You may obtain a copy of the License at
 *
 *        http://www.apache.org/licenses/LICENSE-2.0
 *
 *    Unless required by applicable law or agreed to in writing, software
 *    distributed under the License is distributed on an "AS IS" BASIS,
 *    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *    See the License for the specific language governing permissions and
 *    limitations under the License.
 *
 */

// The jobmon binary runs a single job-monitor worker, the same monitor the
// job manager runs in-process for each job it starts; running one by hand
// is useful when replaying recorded telemetry against a copy of the store.
package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"

	"github.com/locatible/jobmon/config"
	"github.com/locatible/jobmon/db"
	"github.com/locatible/jobmon/logging"
	"github.com/locatible/jobmon/monitor"
)

func main() {
	jobID := pflag.Int("job", 0, "job id to monitor")
	truckID := pflag.Int("truck", 0, "truck id the job is assigned to")
	configPath := pflag.String("config", "config.txt", "path to the configuration file")
	pflag.Parse()

	if *jobID == 0 || *truckID == 0 {
		log.Fatalln("FATAL: --job and --truck are required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: %s\n", err)
	}

	logger, closeLog, err := logging.NewMonitorLogger(cfg.LogsDir, "JM", *jobID, *truckID)
	if err != nil {
		log.Fatalf("FATAL: %s\n", err)
	}
	defer closeLog()

	dbLogger, closeDBLog, err := logging.NewMonitorLogger(cfg.LogsDir, "DB", *jobID, *truckID)
	if err != nil {
		logger.Fatalf("%s", err)
	}
	defer closeDBLog()

	store, err := db.Open(cfg, *jobID, *truckID, dbLogger)
	if err != nil {
		logger.Fatalf("%s", err)
	}
	defer store.Close()

	mon, err := monitor.New(*jobID, *truckID, cfg, store, logger)
	if err != nil {
		logger.Fatalf("%s", err)
	}

	sigch := make(chan os.Signal, 5)
	stopch := make(chan bool)
	signal.Notify(sigch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigch
		logger.Infof("received signal %s", s)
		close(stopch)
	}()

	if err := mon.Run(stopch); err != nil {
		// Store errors end the worker; the job manager supervises restarts.
		logger.Errorf("an error in job %d has occurred: %s", *jobID, err)
		os.Exit(1)
	}
	logger.Info("exiting job monitor")
}
