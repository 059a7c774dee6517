// The scenario binary replays a JSON event script straight through the
// pickup/drop validator, bypassing clamp edges and distance gates. It is
// the offline test driver: point it at a sqlite copy of the store and diff
// the dry-run log against expectations.
package main

import (
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"

	"github.com/locatible/jobmon/config"
	"github.com/locatible/jobmon/db"
	"github.com/locatible/jobmon/logging"
	"github.com/locatible/jobmon/monitor"
)

func main() {
	configPath := pflag.String("config", "config.txt", "path to the configuration file")
	pflag.Parse()
	if pflag.NArg() != 1 {
		log.Fatalln("FATAL: usage: scenario [flags] <scenario.json>")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: %s\n", err)
	}

	scenario, err := monitor.LoadScenario(pflag.Arg(0))
	if err != nil {
		log.Fatalf("FATAL: %s\n", err)
	}

	logger, closeLog, err := logging.NewMonitorLogger(cfg.LogsDir, "JM", scenario.JobID, scenario.TruckID)
	if err != nil {
		log.Fatalf("FATAL: %s\n", err)
	}
	defer closeLog()

	store, err := db.Open(cfg, scenario.JobID, scenario.TruckID, logger)
	if err != nil {
		logger.Fatalf("%s", err)
	}
	defer store.Close()

	mon, err := monitor.New(scenario.JobID, scenario.TruckID, cfg, store, logger)
	if err != nil {
		logger.Fatalf("%s", err)
	}

	player := monitor.NewScenarioPlayer(scenario, mon)
	if err := player.Run(); err != nil {
		logger.Errorf("an error has occurred: %s", err)
	}
}
