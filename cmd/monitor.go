// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/umvh/pkg/calibration"
	"github.com/Thermoquad/umvh/pkg/poller"
	"github.com/Thermoquad/umvh/pkg/publish"
	"github.com/Thermoquad/umvh/pkg/registers"
	"github.com/Thermoquad/umvh/pkg/session"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/golang/glog"
	"github.com/spf13/cobra"
)

var (
	monitorNoTUI  bool
	monitorMQTT   string
	monitorTopic  string
	monitorListen string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll live sensor values",
	Long: `Continuously read every port's raw value and binding.

The sensor block is read once per poll period, followed by the binding block.
After the configured number of consecutive failed cycles the monitor reports
the connection as lost; press 'r' in the terminal UI to start polling again.

Snapshots can be forwarded as JSON:
  --mqtt-broker tcp://host:1883 [--mqtt-topic umvh/snapshot]
  --ws-listen :8080    (clients connect to ws://host:8080/ws)`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorNoTUI, "no-tui", false, "Print snapshots as text lines")
	monitorCmd.Flags().StringVar(&monitorMQTT, "mqtt-broker", "", "Publish snapshots to this MQTT broker")
	monitorCmd.Flags().StringVar(&monitorTopic, "mqtt-topic", "", "MQTT topic (default from config)")
	monitorCmd.Flags().StringVar(&monitorListen, "ws-listen", "", "Serve snapshots over WebSocket on this address")
}

// pollManager owns the poller lifecycle and forwards its events
type pollManager struct {
	ctx    context.Context
	poller *poller.Poller
	layout registers.Layout
	stats  *registers.Statistics
	sink   publish.Sink

	// deliver receives every event after it was published
	deliver func(poller.Event)

	mu     sync.Mutex
	handle *poller.Handle
}

// start launches a new poll run unless one is active
func (pm *pollManager) start() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.handle != nil {
		return
	}
	h := pm.poller.Start(pm.ctx)
	pm.handle = h
	go pm.forward(h)
}

func (pm *pollManager) forward(h *poller.Handle) {
	for ev := range h.Events() {
		if ev.Kind == poller.KindSnapshot && pm.sink != nil {
			if err := pm.sink.Publish(publish.NewMessage(ev.Snapshot, pm.layout)); err != nil {
				glog.Warningf("monitor: publish: %v", err)
			}
		}
		if ev.Terminal() {
			pm.mu.Lock()
			pm.handle = nil
			pm.mu.Unlock()
		}
		pm.deliver(ev)
	}
}

// stop ends the active run and waits for it
func (pm *pollManager) stop() {
	pm.mu.Lock()
	h := pm.handle
	pm.mu.Unlock()
	if h != nil {
		h.Stop()
		h.Wait()
	}
}

// openSinks connects the configured snapshot outputs. The returned cleanup
// function closes them.
func openSinks() (publish.Sink, func(), error) {
	var sinks publish.Fanout
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	broker := cfg.MQTT.Broker
	if monitorMQTT != "" {
		broker = monitorMQTT
	}
	topic := cfg.MQTT.Topic
	if monitorTopic != "" {
		topic = monitorTopic
	}
	if broker != "" {
		client, err := publish.DialMQTT(broker, cfg.MQTT.ClientID, topic)
		if err != nil {
			return nil, cleanup, err
		}
		sinks = append(sinks, client)
		closers = append(closers, client.Close)
	}

	listen := cfg.WebSocket.Listen
	if monitorListen != "" {
		listen = monitorListen
	}
	if listen != "" {
		hub := publish.NewHub()
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				glog.Errorf("monitor: websocket server: %v", err)
			}
		}()
		glog.Infof("monitor: serving snapshots on ws://%s/ws", listen)
		sinks = append(sinks, hub)
		closers = append(closers, func() {
			hub.Close()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		})
	}

	if len(sinks) == 0 {
		return nil, cleanup, nil
	}
	return sinks, cleanup, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	layout, err := cfg.Layout()
	if err != nil {
		return err
	}

	conn, err := openConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	lease, err := conn.Begin(session.Polling)
	if err != nil {
		return err
	}
	defer lease.End()

	sink, closeSinks, err := openSinks()
	defer closeSinks()
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	ch := channel(lease)
	ch.Stats = registers.NewStatistics()
	pm := &pollManager{
		ctx: ctx,
		poller: poller.New(ch, layout, poller.Options{
			Period:    cfg.Poll.Period,
			Backoff:   cfg.Poll.Backoff,
			Threshold: cfg.Poll.Threshold,
		}),
		layout: layout,
		stats:  ch.Stats,
		sink:   sink,
	}

	if monitorNoTUI {
		return runMonitorText(pm, conn.info)
	}

	m := newMonitorModel(pm, layout, conn.info)
	p := tea.NewProgram(m, tea.WithAltScreen())
	pm.deliver = func(ev poller.Event) { p.Send(monitorEventMsg(ev)) }
	pm.start()

	_, err = p.Run()
	pm.stop()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

func runMonitorText(pm *pollManager, connInfo string) error {
	fmt.Printf("umvh - Sensor Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Register map: %s\n", pm.layout.Name)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	final := make(chan poller.Event, 1)
	pm.deliver = func(ev poller.Event) {
		if ev.Terminal() {
			final <- ev
			return
		}
		fmt.Println(formatSnapshotLine(ev.Snapshot))
	}
	pm.start()

	ev := <-final
	fmt.Printf("\n%s", pm.stats)
	switch ev.Kind {
	case poller.KindStopped:
		return nil
	default:
		return holdFailure(ev.Err)
	}
}

// formatSnapshotLine renders a snapshot as one line of port=value pairs
func formatSnapshotLine(s *poller.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] #%d", s.Time.Format("15:04:05.000"), s.Cycle)
	for port := 1; port <= len(s.Sensors); port++ {
		dev := calibration.SwapPort(port)
		if dev < 1 || dev > len(s.Sensors) {
			continue
		}
		sensor := 0
		if dev <= len(s.Bindings) {
			sensor = calibration.DecodeBinding(s.Bindings[dev-1]).Sensor
		}
		fmt.Fprintf(&b, " P%d=%s", port, calibration.FormatValue(s.Sensors[dev-1], sensor))
	}
	return b.String()
}
