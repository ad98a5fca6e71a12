package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	transport "github.com/ringtransport/transport"
	"github.com/ringtransport/transport/internal/logging"
)

func main() {
	var (
		addr    = flag.String("addr", "127.0.0.1:17001", "TCP address to listen on")
		workers = flag.Int("workers", 2, "number of worker rings")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	cfg := transport.DefaultConfig()
	cfg.ListenAddr = *addr
	if *workers > 0 {
		workerCfgs := make([]transport.WorkerConfig, *workers)
		for i := range workerCfgs {
			workerCfgs[i] = transport.DefaultWorkerConfig()
			workerCfgs[i].ID = i
		}
		cfg.Workers = workerCfgs
		cfg.Listener.WorkersCount = *workers
	}

	tr, err := transport.New(cfg, logger)
	if err != nil {
		logger.Error("failed to build transport", "error", err)
		os.Exit(1)
	}

	tr.Start()
	logger.Info("echo server listening", "addr", *addr, "port", tr.ListenPort(), "workers", *workers)

	go runEchoHandlers(tr, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	tr.Shutdown()
	snap := tr.Metrics().Snapshot()
	fmt.Printf("total reads=%d total writes=%d accept_errors=%d\n", snap.ReadOps, snap.WriteOps, snap.AcceptErrors)
}

// runEchoHandlers is the minimal S1 echo scenario: every accepted
// connection gets an initial read armed by the worker itself; whatever
// comes back on the read port is written straight back out on the write
// port, and a failed read or write releases the buffer instead of
// re-arming anything.
func runEchoHandlers(tr *transport.Transport, logger *logging.Logger) {
	for _, w := range tr.Workers() {
		w := w
		go func() {
			for {
				select {
				case p, ok := <-w.ReadPort():
					if !ok {
						return
					}
					if p.Err != nil {
						w.ReleaseBuffer(p.BufferID)
						continue
					}
					w.AddWrite(p.Fd, p.BufferID, 0, 0, 0, 0)
				case p, ok := <-w.WritePort():
					if !ok {
						return
					}
					if p.Err != nil {
						w.ReleaseBuffer(p.BufferID)
						continue
					}
					w.AddRead(p.Fd, p.BufferID, 0, 0, 0, 0)
				case p, ok := <-w.AcceptPort():
					if !ok {
						return
					}
					if p.Err != nil {
						logger.Warn("accept failed", "error", p.Err)
					}
				}
			}
		}()
	}
}
