package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"simbridge.dev/internal/bridge"
	"simbridge.dev/internal/persistence/oplog"
	"simbridge.dev/internal/protocol"
	"simbridge.dev/internal/schema"
)

// Replays a journaled op stream through a fresh bridge offline. Useful for
// reproducing resolution bugs from production journals: the final pending-ref
// count and stats show whether every reference eventually resolved.
func main() {
	var (
		dataDir   = flag.String("data", "./data", "runtime data directory containing ops/")
		configDir = flag.String("configs", "./configs", "config directory")
		fromSeq   = flag.Uint64("from_seq", 0, "skip ops before this sequence number")
		toSeq     = flag.Uint64("to_seq", 0, "stop after this sequence number (0 = all)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	reg, err := schema.LoadCatalog(filepath.Join(*configDir, "components.yaml"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load component catalog:", err)
		os.Exit(1)
	}

	b := bridge.New(bridge.Config{
		Log:      logger,
		Registry: reg,
		Sender:   discardSender{},
	})

	files, err := oplog.ListFiles(filepath.Join(*dataDir, "ops"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files under", filepath.Join(*dataDir, "ops"))
		os.Exit(1)
	}

	var replayed uint64
	var lastSeq uint64
	for _, path := range files {
		err := oplog.ReadFile(path, func(e oplog.Entry) error {
			if e.Seq < *fromSeq {
				return nil
			}
			if *toSeq != 0 && e.Seq > *toSeq {
				return errDone
			}
			op, err := protocol.DecodeOp(e.Raw)
			if err != nil {
				return fmt.Errorf("%s seq=%d: %w", filepath.Base(path), e.Seq, err)
			}
			b.Dispatch(op)
			replayed++
			lastSeq = e.Seq
			return nil
		})
		if err == errDone {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	s := b.Stats()
	fmt.Printf("replay ok: ops=%d last_seq=%d entities=%d/%d props buffered=%d resolved=%d rpcs queued=%d invoked=%d pending_refs=%d\n",
		replayed, lastSeq, s.EntitiesCreated, s.EntitiesRemoved, s.PropsBuffered, s.PropsResolved,
		s.RPCsQueued, s.RPCsInvoked, b.PendingRefs())
}

var errDone = fmt.Errorf("done")

// discardSender drops every outbound request. Request ids still have to be
// unique so stale-response handling behaves as in production.
type discardSender struct{}

var discardSeq uint64

func nextDiscardID() string {
	discardSeq++
	return fmt.Sprintf("replay-%d", discardSeq)
}

func (discardSender) SendCreateEntityRequest(int64, []protocol.ComponentSnapshot) string {
	return nextDiscardID()
}
func (discardSender) SendReserveEntityIDsRequest(int) string       { return nextDiscardID() }
func (discardSender) SendEntityQueryRequest(uint32) string         { return nextDiscardID() }
func (discardSender) SendCommandRequest(int64, uint32, uint32, []byte) string {
	return nextDiscardID()
}
func (discardSender) SendCommandResponse(string, string, []byte)  {}
func (discardSender) SendComponentUpdate(int64, uint32, []byte)   {}
