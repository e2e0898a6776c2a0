package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"simbridge.dev/internal/bridge"
	"simbridge.dev/internal/persistence/opindex"
	"simbridge.dev/internal/persistence/oplog"
	"simbridge.dev/internal/schema"
	"simbridge.dev/internal/transport/ws"
	"simbridge.dev/internal/tuning"
)

func main() {
	var (
		runtimeURL = flag.String("runtime", "", "runtime websocket url (default: from tuning.yaml)")
		workerType = flag.String("worker_type", "", "worker type announced at handshake (default: from tuning.yaml)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite op index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bridge] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}
	if *runtimeURL != "" {
		tune.RuntimeURL = *runtimeURL
	}
	if *workerType != "" {
		tune.WorkerType = *workerType
	}

	reg, err := schema.LoadCatalog(filepath.Join(*configDir, "components.yaml"))
	if err != nil {
		logger.Fatalf("load component catalog: %v", err)
	}

	_ = os.MkdirAll(*dataDir, 0o755)

	var journal *oplog.Journal
	if tune.Persistence.Journal {
		journal = oplog.NewJournal(*dataDir)
		defer journal.Close()
	}

	var idx *opindex.SQLiteIndex
	if tune.Persistence.Index && !*disableDB {
		idx, err = opindex.Open(filepath.Join(*dataDir, "index", "ops.db"))
		if err != nil {
			logger.Fatalf("open op index: %v", err)
		}
		defer idx.Close()
	}

	cfg := bridge.Config{
		Log:                 logger,
		Registry:            reg,
		InboxSize:           tune.InboxSize,
		ReliableRPCAttempts: tune.ReliableRPCAttempts,
	}
	if journal != nil {
		cfg.Journal = journal
	}
	if idx != nil {
		cfg.Index = idx
	}
	b := bridge.New(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := ws.Dial(dialCtx, tune.RuntimeURL, tune.WorkerType, b.Inbox(), logger)
	dialCancel()
	if err != nil {
		logger.Fatalf("connect runtime: %v", err)
	}
	b.SetSender(client)
	logger.Printf("connected to %s as worker %s", tune.RuntimeURL, client.WorkerID())

	go func() {
		if err := client.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("connection closed: %v", err)
		}
		cancel()
	}()

	if err := b.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatalf("bridge stopped: %v", err)
	}

	s := b.Stats()
	logger.Printf("shutdown: ops=%d entities=%d/%d props buffered=%d resolved=%d rpcs queued=%d invoked=%d dropped=%d",
		s.Ops, s.EntitiesCreated, s.EntitiesRemoved, s.PropsBuffered, s.PropsResolved, s.RPCsQueued, s.RPCsInvoked, s.Dropped)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
