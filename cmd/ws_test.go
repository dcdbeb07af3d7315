// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/umvh/pkg/publish"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var wsTestCmd = &cobra.Command{
	Use:   "ws_test",
	Short: "Subscribe to a running monitor's WebSocket feed",
	Long: `Connect to the WebSocket endpoint of 'umvh monitor --ws-listen' and print
every snapshot received.

Useful for checking that a monitor is publishing and that the connection
stays up.

Exit codes:
  0 - Test completed normally
  1 - Connection dropped or a malformed message arrived
  2 - Connection error`,
	Args: cobra.NoArgs,
	RunE: runWsTest,
}

var (
	wsTestURL      string
	wsTestDuration int
)

func init() {
	rootCmd.AddCommand(wsTestCmd)
	wsTestCmd.Flags().StringVar(&wsTestURL, "url", "", "WebSocket URL (default: ws://<websocket.listen>/ws)")
	wsTestCmd.Flags().IntVar(&wsTestDuration, "duration", 30, "Test duration in seconds")
}

func wsTestTarget() string {
	if wsTestURL != "" {
		return wsTestURL
	}
	listen := cfg.WebSocket.Listen
	if listen == "" {
		listen = "localhost:8080"
	}
	if listen[0] == ':' {
		listen = "localhost" + listen
	}
	return "ws://" + listen + "/ws"
}

func runWsTest(cmd *cobra.Command, args []string) error {
	url := wsTestTarget()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("WebSocket Feed Test\n")
	fmt.Printf("Connection: %s\n", url)
	fmt.Printf("Duration: %d seconds\n\n", wsTestDuration)

	type result struct {
		msg publish.Message
		err error
	}
	results := make(chan result, 16)
	go func() {
		for {
			var msg publish.Message
			_, data, err := conn.ReadMessage()
			if err == nil {
				err = json.Unmarshal(data, &msg)
			}
			results <- result{msg: msg, err: err}
			if err != nil {
				return
			}
		}
	}()

	ctx, stop := signalContext()
	defer stop()

	deadline := time.After(time.Duration(wsTestDuration) * time.Second)
	received := 0
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			fmt.Printf("\nInterrupted after %d messages\n", received)
			return nil
		case <-deadline:
			fmt.Printf("\nReceived %d messages in %s\n", received, time.Since(start).Round(time.Second))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil
		case r := <-results:
			if r.err != nil {
				fmt.Fprintf(os.Stderr, "\n[%s] %v\n", time.Now().Format("15:04:05.000"), r.err)
				os.Exit(1)
			}
			received++
			fmt.Printf("[%s] cycle %d (%s):", r.msg.Time.Format("15:04:05.000"), r.msg.Cycle, r.msg.Revision)
			for _, rd := range r.msg.Readings {
				fmt.Printf(" P%d=%s", rd.Port, rd.Value)
			}
			fmt.Println()
		}
	}
}
