package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/blemgr/internal/device"
	goble "github.com/srg/blemgr/internal/device/go-ble"
	"github.com/srg/blemgr/internal/eventlog"
	"github.com/srg/blemgr/internal/events"
	"github.com/srg/blemgr/internal/manager"
)

// lockedWriter serializes writes coming from notification goroutines.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Printf(format string, args ...any) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	fmt.Fprintf(lw.w, format, args...)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

func newSubscribeCmd() *cobra.Command {
	var serviceUUID string
	var count int
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "subscribe <device-id> <char-uuid>",
		Short: "Print characteristic notifications",
		Long: `Subscribes to a characteristic and prints every notification, decoded with
the configured custom formatter or as UTF-8 text. Runs until Ctrl+C, --count
notifications or --duration.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			sigCtx, stop := signalContext(cmd.Context())
			defer stop()
			ctx, cancel := withOptionalTimeout(sigCtx, duration)
			defer cancel()

			id, charUUID := args[0], args[1]
			d, err := a.mgr.Connect(ctx, id)
			if err != nil {
				return err
			}
			svc, err := resolveService(d, serviceUUID, charUUID)
			if err != nil {
				return err
			}

			out := &lockedWriter{w: cmd.OutOrStdout()}
			var mu sync.Mutex
			seen := 0
			subID, err := a.mgr.Subscribe(ctx, id, svc, charUUID, func(value string) {
				mu.Lock()
				seen++
				n := seen
				mu.Unlock()
				out.Printf("%s %s\n", time.Now().Format(time.RFC3339), value)
				if count > 0 && n == count {
					cancel()
				}
			})
			if err != nil {
				return err
			}

			<-ctx.Done()
			// use a fresh context, ctx is already done
			if err := a.mgr.Unsubscribe(context.Background(), id, svc, charUUID, subID); err != nil {
				return err
			}
			if sigCtx.Err() != nil {
				return context.Canceled
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serviceUUID, "service", "", "Service UUID (required if the characteristic UUID is ambiguous)")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Stop after this many notifications (0 for unlimited)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 for unlimited)")
	return cmd
}

func newMonitorCmd() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "monitor [device-id...]",
		Short: "Print manager events as they happen",
		Long: `Prints every manager event. Listed devices are connected and all of their
notifying characteristics are enabled, so value updates show up as read events.
Runs until Ctrl+C or --duration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, goble.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			sigCtx, stop := signalContext(cmd.Context())
			defer stop()
			ctx, cancel := withOptionalTimeout(sigCtx, duration)
			defer cancel()

			out := &lockedWriter{w: cmd.OutOrStdout()}
			ids := a.bus.AddAll(func(e events.Event) {
				entry := eventlog.Describe(e)
				entry.Time = time.Now()
				out.Printf("%s\n", entry)
			})
			defer func() {
				for i, lid := range ids {
					a.bus.RemoveListener(events.Kinds[i], lid)
				}
			}()

			var enabled []notifyTarget
			for _, id := range args {
				d, err := a.mgr.Connect(ctx, id)
				if err != nil {
					a.logger.WithField("device", id).WithError(err).Warn("Skipping device")
					continue
				}
				enabled = append(enabled, enableNotifications(ctx, a.mgr, d)...)
			}

			<-ctx.Done()
			for _, t := range enabled {
				_ = a.mgr.StopNotifications(context.Background(), t.id, t.svc, t.char)
			}

			m := a.history.Metrics()
			out.Printf("%d event(s) recorded, %d dropped from history\n", m.Recorded, m.Overwritten)
			if sigCtx.Err() != nil {
				return context.Canceled
			}
			return nil
		},
	}
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Stop after this long (0 for unlimited)")
	return cmd
}

type notifyTarget struct {
	id, svc, char string
}

func enableNotifications(ctx context.Context, mgr *manager.Manager, d device.Device) []notifyTarget {
	var out []notifyTarget
	for _, svc := range d.Services {
		for _, c := range svc.Characteristics {
			if !c.Properties.CanNotify() {
				continue
			}
			if err := mgr.StartNotifications(ctx, d.ID, svc.UUID, c.UUID); err != nil {
				continue
			}
			out = append(out, notifyTarget{id: d.ID, svc: svc.UUID, char: c.UUID})
		}
	}
	return out
}
