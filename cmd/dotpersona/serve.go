package main

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dotsetgreg/dotpersona/pkg/bus"
	"github.com/dotsetgreg/dotpersona/pkg/logger"
	"github.com/dotsetgreg/dotpersona/pkg/maintenance"
)

const stdioSource = "stdio"

func newServeCommand(opts *rootOptions) *cobra.Command {
	var noBackups bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway over JSON lines on stdin/stdout",
		Long: strings.TrimSpace(`Read one JSON turn request per line from stdin and write one JSON result per
line to stdout. Requests with a "response" field are only evaluated. Turns for
the same user are handled in order; different users run concurrently. The
scheduled profile backup runs alongside unless --no-backups is set.`),
		Example: `  echo '{"user_id":"alice","message":"hi there!"}' | dotpersona serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mb := bus.NewMessageBus()
			deps, err := opts.load(mb)
			if err != nil {
				return err
			}
			defer deps.close()

			var sched *maintenance.Scheduler
			if !noBackups {
				sched, err = maintenance.NewScheduler(
					deps.cfg.Maintenance.BackupSchedule,
					deps.agent.Store(),
					deps.cfg.BackupDir(),
					deps.cfg.Maintenance.KeepBackups,
				)
				if err != nil {
					return err
				}
			}
			return serve(cmd.Context(), deps, mb, sched, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&noBackups, "no-backups", false, "Disable the scheduled profile backup")
	return cmd
}

// serve runs until ctx is done, or until stdin is exhausted and every
// request read from it has been answered.
func serve(ctx context.Context, deps *runtimeDeps, mb *bus.MessageBus, sched *maintenance.Scheduler, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var writeMu sync.Mutex
	enc := json.NewEncoder(out)
	mb.RegisterHandler(stdioSource, func(res bus.TurnResult) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := enc.Encode(res); err != nil {
			logger.WarnCF("serve", "Result write failed", map[string]interface{}{
				"request_id": res.RequestID,
				"error":      err.Error(),
			})
		}
	})

	eof := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return deps.agent.Run(gctx) })
	if sched != nil {
		g.Go(func() error { return sched.Run(gctx) })
	}
	// The reader is left out of the group: a blocked stdin read must not
	// hold up shutdown.
	go func() {
		defer close(eof)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var req bus.TurnRequest
			if err := json.Unmarshal([]byte(line), &req); err != nil {
				mb.Dispatch(bus.TurnResult{Source: stdioSource, Error: "invalid request: " + err.Error()})
				continue
			}
			if req.ID == "" {
				req.ID = uuid.NewString()
			}
			req.Source = stdioSource
			req.ReceivedAt = time.Now().UTC()
			if !mb.PublishInbound(gctx, req) {
				mb.Dispatch(bus.TurnResult{RequestID: req.ID, Source: stdioSource, UserID: req.UserID, Error: "request dropped: gateway busy"})
			}
		}
		if err := scanner.Err(); err != nil {
			logger.WarnCF("serve", "Request read failed", map[string]interface{}{"error": err.Error()})
		}
	}()
	g.Go(func() error {
		defer cancel()
		var dispatched uint64
		for {
			select {
			case <-eof:
				st := mb.Stats()
				if st.Answered+st.DroppedOutbound >= st.Accepted && dispatched >= st.Answered {
					return nil
				}
			default:
			}
			waitCtx, waitCancel := context.WithTimeout(gctx, 50*time.Millisecond)
			res, ok := mb.SubscribeOutbound(waitCtx)
			waitCancel()
			if !ok {
				if gctx.Err() != nil {
					return nil
				}
				continue
			}
			dispatched++
			if !mb.Dispatch(res) {
				logger.WarnCF("serve", "No handler for result", map[string]interface{}{"source": res.Source})
			}
		}
	})
	return g.Wait()
}
