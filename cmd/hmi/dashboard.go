package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell"
	"github.com/ohowland/substation_twin/internal/pkg/asset"
	"github.com/ohowland/substation_twin/internal/pkg/telemetry"
	"github.com/ohowland/substation_twin/internal/pkg/twin"
	"github.com/rivo/tview"
)

// envelope mirrors webservice.Envelope with a deferred payload.
type envelope struct {
	Type string          `json:"Type"`
	Data json.RawMessage `json:"Data"`
}

// Dashboard holds the widgets refreshed from the live feed.
type Dashboard struct {
	grid   *tview.Table
	edges  *tview.Table
	assets *tview.Table
	alerts *tview.TextView
	root   *tview.Flex
}

// NewDashboard lays out the grid summary, edge loading, asset health and alert log.
func NewDashboard() *Dashboard {
	d := &Dashboard{
		grid:   tview.NewTable().SetBorders(false),
		edges:  tview.NewTable().SetBorders(false),
		assets: tview.NewTable().SetBorders(false),
		alerts: tview.NewTextView().SetDynamicColors(true).SetScrollable(true),
	}
	d.grid.SetBorder(true).SetTitle(" Grid ")
	d.edges.SetBorder(true).SetTitle(" Edge Loading ")
	d.assets.SetBorder(true).SetTitle(" Asset Health ")
	d.alerts.SetBorder(true).SetTitle(" Alerts ")

	d.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tview.NewFlex().
			AddItem(d.grid, 0, 1, false).
			AddItem(d.edges, 0, 1, false), 0, 2, false).
		AddItem(d.assets, 0, 1, false).
		AddItem(d.alerts, 0, 1, false)
	return d
}

// Apply decodes one websocket message into the widgets. It must run on the tview event loop.
func (d *Dashboard) Apply(body []byte) error {
	env := envelope{}
	if err := json.Unmarshal(body, &env); err != nil {
		return err
	}
	switch env.Type {
	case "telemetry":
		frame := telemetry.Frame{}
		if err := json.Unmarshal(env.Data, &frame); err != nil {
			return err
		}
		fillTable(d.grid, gridRows(frame.Grid))
		fillTable(d.edges, edgeRows(frame.Grid.EdgeLoading))
		fillTable(d.assets, assetRows(frame.Assets))
	case "alert":
		a := telemetry.Alert{}
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return err
		}
		fmt.Fprintln(d.alerts, alertLine(a))
		d.alerts.ScrollToEnd()
	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
	return nil
}

func gridRows(s twin.Status) [][]string {
	state := "Steady"
	if len(s.Alerts) > 0 {
		state = "Overloaded"
	}
	if s.Degraded {
		state += " (degraded)"
	}
	return [][]string{
		{"Tick", fmt.Sprint(s.Timestamp)},
		{"Total Load", fmt.Sprintf("%.2f MW", s.TotalLoadMW)},
		{"Transformer", fmt.Sprintf("%.2f %%", s.TransformerLoadingPercent)},
		{"State", state},
	}
}

func edgeRows(loading map[string]float64) [][]string {
	ids := make([]string, 0, len(loading))
	for id := range loading {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := [][]string{{"Edge", "Loading %"}}
	for _, id := range ids {
		rows = append(rows, []string{id, fmt.Sprintf("%.2f", loading[id])})
	}
	return rows
}

func assetRows(assets map[string]telemetry.AssetFrame) [][]string {
	ids := make([]string, 0, len(assets))
	for id := range assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := [][]string{{"Asset", "Oil °C", "Vibration", "Gas ppm", "Score", "Status"}}
	for _, id := range ids {
		a := assets[id]
		rows = append(rows, []string{
			id,
			fmt.Sprintf("%.1f", a.Telemetry.OilTemperature),
			fmt.Sprintf("%.2f", a.Telemetry.Vibration),
			fmt.Sprintf("%.1f", a.Telemetry.DissolvedGasPPM),
			fmt.Sprintf("%.0f", a.Health.HealthScore),
			a.Health.Status,
		})
	}
	return rows
}

func alertLine(a telemetry.Alert) string {
	color := "yellow"
	if strings.HasPrefix(a.Message, "CRITICAL") {
		color = "red"
	}
	return fmt.Sprintf("[%s]%s  tick %d  %s[white]", color, a.Timestamp.Format("15:04:05"), a.Tick, a.Message)
}

func cellColor(text string) tcell.Color {
	switch text {
	case asset.Critical, "Overloaded", "Overloaded (degraded)":
		return tcell.ColorRed
	case asset.Good, "Steady":
		return tcell.ColorGreen
	}
	return tcell.ColorWhite
}

func fillTable(t *tview.Table, rows [][]string) {
	t.Clear()
	for r, row := range rows {
		for c, text := range row {
			t.SetCell(r, c, tview.NewTableCell(text).
				SetTextColor(cellColor(text)).
				SetAlign(tview.AlignLeft).
				SetExpansion(1))
		}
	}
}
