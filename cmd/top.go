package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"github.com/urfave/cli/v2"

	"github.com/outpostrun/enginehost/internal/domain/model"
)

// topCmd renders a live terminal dashboard of one app's Info()
// snapshots, polled from the admin HTTP surface. Grounded on gizak/
// termui's widget-redraw-on-tick idiom.
func topCmd() *cli.Command {
	return &cli.Command{
		Name:  "top",
		Usage: "live terminal dashboard for one hosted app",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "admin_addr", Value: "http://localhost:8090"},
			&cli.StringFlag{Name: "app", Required: true},
		},
		Action: func(c *cli.Context) error {
			return runTop(c.String("admin_addr"), c.String("app"))
		},
	}
}

func runTop(adminAddr, app string) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("cmd: termui init: %w", err)
	}
	defer ui.Close()

	table := widgets.NewTable()
	table.Title = fmt.Sprintf("enginehost — %s", app)
	table.SetRect(0, 0, 60, 12)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	events := ui.PollEvents()

	for {
		select {
		case e := <-events:
			if e.ID == "q" || e.ID == "<C-c>" {
				return nil
			}
		case <-ticker.C:
			snap, err := fetchSnapshot(adminAddr, app)
			if err != nil {
				table.Rows = [][]string{{"error", err.Error()}}
			} else {
				table.Rows = snapshotRows(snap)
			}
			ui.Render(table)
		}
	}
}

func snapshotRows(s model.Snapshot) [][]string {
	return [][]string{
		{"field", "value"},
		{"queue_depth", fmt.Sprintf("%d", s.QueueDepth)},
		{"pool.active", fmt.Sprintf("%d", s.Pool.Active)},
		{"pool.draining", fmt.Sprintf("%d", s.Pool.Draining)},
		{"pool.spawning", fmt.Sprintf("%d", s.Pool.Spawning)},
		{"pool.dead_since_start", fmt.Sprintf("%d", s.Pool.DeadSinceStart)},
		{"sessions.served", fmt.Sprintf("%d", s.Sessions.Served)},
		{"sessions.in_flight", fmt.Sprintf("%d", s.Sessions.InFlight)},
		{"uptime_ms", fmt.Sprintf("%d", s.UptimeMS)},
	}
}

func fetchSnapshot(adminAddr, app string) (model.Snapshot, error) {
	resp, err := http.Get(fmt.Sprintf("%s/apps/%s/snapshot", adminAddr, app))
	if err != nil {
		return model.Snapshot{}, err
	}
	defer resp.Body.Close()

	var snap model.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return model.Snapshot{}, err
	}
	return snap, nil
}
