package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/gdamore/tcell"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
)

const logo = `
  ____        _         _        _   _
 / ___| _   _| |__  ___| |_ __ _| |_(_) ___  _ __
 \___ \| | | | '_ \/ __| __/ _' | __| |/ _ \| '_ \
  ___) | |_| | |_) \__ \ || (_| | |_| | (_) | | | |
 |____/ \__,_|_.__/|___/\__\__,_|\__|_|\___/|_| |_|
`

type HMI func(*tview.Pages) (title string, content tview.Primitive)

func main() {
	server := flag.String("server", "localhost:8080", "twin webservice host:port")
	flag.Parse()

	app := tview.NewApplication()
	dash := NewDashboard()
	status := tview.NewTextView().SetDynamicColors(true)

	hmis := []HMI{
		splash,
		func(*tview.Pages) (string, tview.Primitive) { return "Dashboard", dash.root },
	}
	pages := tview.NewPages()
	for _, hmi := range hmis {
		title, primitive := hmi(pages)
		pages.AddPage(title, primitive, true, title == "Splash")
	}

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(pages, 0, 1, true).
		AddItem(status, 1, 0, false)

	u := url.URL{Scheme: "ws", Host: *server, Path: "/api/ws/live"}
	go follow(app, dash, status, u.String())

	if err := app.SetRoot(layout, true).Run(); err != nil {
		log.Fatal(err)
	}
}

// follow keeps a websocket connection to the twin open and feeds every message to the dashboard.
func follow(app *tview.Application, dash *Dashboard, status *tview.TextView, addr string) {
	setStatus := func(text string) {
		app.QueueUpdateDraw(func() {
			status.SetText(text)
		})
	}
	for {
		conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
		if err != nil {
			setStatus(fmt.Sprintf("[red]disconnected from %s: %v, retrying", addr, err))
			time.Sleep(2 * time.Second)
			continue
		}
		setStatus("[green]connected to " + addr)
		for {
			_, body, err := conn.ReadMessage()
			if err != nil {
				setStatus(fmt.Sprintf("[red]connection lost: %v", err))
				break
			}
			app.QueueUpdateDraw(func() {
				if err := dash.Apply(body); err != nil {
					status.SetText("[yellow]" + err.Error())
				}
			})
		}
		conn.Close()
		time.Sleep(time.Second)
	}
}

func splash(pages *tview.Pages) (title string, content tview.Primitive) {
	lines := strings.Split(logo, "\n")
	logoWidth := 0
	for _, line := range lines {
		if len(line) > logoWidth {
			logoWidth = len(line)
		}
	}
	logoBox := tview.NewTextView().
		SetTextColor(tcell.ColorBlue).
		SetDoneFunc(func(key tcell.Key) {
			pages.SwitchToPage("Dashboard")
		})
	fmt.Fprint(logoBox, logo)

	frame := tview.NewFrame(tview.NewBox()).
		SetBorders(0, 0, 0, 0, 0, 0).
		AddText("Substation Digital Twin v0.1", true, tview.AlignCenter, tcell.ColorWhite).
		AddText("", true, tview.AlignCenter, tcell.ColorWhite).
		AddText("press enter", true, tview.AlignCenter, tcell.ColorDarkMagenta)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(tview.NewBox(), 0, 5, false).
		AddItem(tview.NewFlex().
			AddItem(tview.NewBox(), 0, 1, false).
			AddItem(logoBox, logoWidth, 1, true).
			AddItem(tview.NewBox(), 0, 1, false), len(lines), 1, true).
		AddItem(frame, 0, 10, false)

	return "Splash", flex
}
