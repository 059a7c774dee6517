// The jobmanager binary is the dispatcher: it accepts start-job requests on
// an admin HTTP endpoint, deactivates the truck's previous job and spawns a
// monitor worker for the new one. At most one dispatcher runs per host,
// enforced with a lock file, which is what makes the one-worker-per-truck
// guarantee hold.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/alphadose/haxmap"
	"github.com/gofrs/flock"
	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/locatible/jobmon/config"
	"github.com/locatible/jobmon/db"
	"github.com/locatible/jobmon/logging"
	"github.com/locatible/jobmon/monitor"
)

const lockFile = "jobmanager.lock"

// worker tracks one spawned monitor goroutine.
type worker struct {
	jobID  int
	stopch chan bool
}

type manager struct {
	cfg     *config.Config
	admin   *db.Admin
	log     *zap.SugaredLogger
	workers *haxmap.Map[int, *worker]
	wg      sync.WaitGroup
}

func (jm *manager) startJobHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JobID int `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == 0 {
		jm.reply(w, "error", fmt.Sprintf("Missing data: job_id=%d", req.JobID))
		return
	}
	jm.log.Infof("starting job %d", req.JobID)

	truckID, err := jm.admin.TruckForJob(req.JobID)
	if err != nil {
		jm.reply(w, "error", fmt.Sprintf("Unexpected error when starting job %d: %s", req.JobID, err))
		return
	}
	if truckID == 0 {
		jm.reply(w, "error", fmt.Sprintf("Missing data: truck_id=%d", truckID))
		return
	}
	jm.log.Infof("truck id is %d", truckID)

	active, err := jm.admin.HasActiveTasks(truckID)
	if err != nil {
		jm.reply(w, "error", fmt.Sprintf("Unexpected error when starting job %d: %s", req.JobID, err))
		return
	}
	if active {
		jm.reply(w, "error",
			fmt.Sprintf("Cannot start job %d as truck %d has active tasks", req.JobID, truckID))
		return
	}

	if err := jm.admin.DeactivatePriorJobs(truckID); err != nil {
		jm.reply(w, "error", fmt.Sprintf("Unexpected error when starting job %d: %s", req.JobID, err))
		return
	}
	if err := jm.admin.ActivateJob(req.JobID); err != nil {
		jm.reply(w, "error", fmt.Sprintf("Unexpected error when starting job %d: %s", req.JobID, err))
		return
	}
	jm.spawnWorker(req.JobID, truckID)
	jm.reply(w, "success", fmt.Sprintf("Job %d has been started", req.JobID))
}

// spawnWorker runs a monitor for (job, truck) in its own goroutine with its
// own store handle and log files. The previous worker for the truck, if
// any, notices its deactivated job on the next tick and exits on its own.
func (jm *manager) spawnWorker(jobID, truckID int) {
	wk := &worker{jobID: jobID, stopch: make(chan bool)}
	jm.workers.Set(truckID, wk)

	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()

		logger, closeLog, err := logging.NewMonitorLogger(jm.cfg.LogsDir, "JM", jobID, truckID)
		if err != nil {
			jm.log.Errorf("job %d: %s", jobID, err)
			return
		}
		defer closeLog()
		dbLogger, closeDBLog, err := logging.NewMonitorLogger(jm.cfg.LogsDir, "DB", jobID, truckID)
		if err != nil {
			jm.log.Errorf("job %d: %s", jobID, err)
			return
		}
		defer closeDBLog()

		store, err := db.Open(jm.cfg, jobID, truckID, dbLogger)
		if err != nil {
			jm.log.Errorf("job %d: %s", jobID, err)
			return
		}
		defer store.Close()

		mon, err := monitor.New(jobID, truckID, jm.cfg, store, logger)
		if err != nil {
			jm.log.Errorf("job %d: %s", jobID, err)
			return
		}
		if err := mon.Run(wk.stopch); err != nil {
			logger.Errorf("an error in job %d has occurred: %s", jobID, err)
		}
	}()
	jm.log.Infof("job monitor started for job %d on truck %d", jobID, truckID)
}

func (jm *manager) reply(w http.ResponseWriter, key, message string) {
	if key == "error" {
		jm.log.Info(message)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{key: message})
}

func main() {
	configPath := pflag.String("config", "config.txt", "path to the configuration file")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("FATAL: %s\n", err)
	}

	lock := flock.New(lockFile)
	locked, err := lock.TryLock()
	if err != nil {
		log.Fatalf("FATAL: acquiring %s: %s\n", lockFile, err)
	}
	if !locked {
		log.Fatalf("FATAL: another job manager is already running (%s held)\n", lockFile)
	}
	defer lock.Unlock()

	logger, closeLog, err := logging.NewManagerLogger(cfg.LogsDir)
	if err != nil {
		log.Fatalf("FATAL: %s\n", err)
	}
	defer closeLog()

	admin, err := db.OpenAdmin(cfg, logger)
	if err != nil {
		logger.Fatalf("%s", err)
	}
	defer admin.Close()

	jm := &manager{
		cfg:     cfg,
		admin:   admin,
		log:     logger,
		workers: haxmap.New[int, *worker](),
	}

	router := mux.NewRouter()
	router.HandleFunc("/job_manager/start_job", jm.startJobHandler).Methods(http.MethodPost)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.JobManagerPort),
		Handler: router,
	}

	sigch := make(chan os.Signal, 5)
	signal.Notify(sigch, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigch
		logger.Infof("received signal %s", s)
		_ = server.Close()
	}()

	logger.Infof("job manager listening on port %d", cfg.JobManagerPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Errorf("%s", err)
	}

	// Ask running workers to stop and wait for them; the store flag remains
	// the canonical cancellation channel for workers we didn't spawn.
	jm.workers.ForEach(func(truckID int, wk *worker) bool {
		close(wk.stopch)
		return true
	})
	jm.wg.Wait()
	logger.Info("exiting job manager")
}
