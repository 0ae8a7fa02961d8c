// Package console is the operator dashboard for local storage maintenance.
package console

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"hackhub/internal/dm"
)

// Maintainer is the part of dm.Service the console drives.
type Maintainer interface {
	GetStorageUsage(ctx context.Context) (dm.Usage, error)
	Cleanup(ctx context.Context) (int, error)
	AggressiveCleanup(ctx context.Context) (int, error)
	StripAllAttachments(ctx context.Context) (int, error)
	ClearLocalMessages(ctx context.Context) (int, error)
	InvalidateProbe()
	RemoteAvailable(ctx context.Context) bool
}

type action struct {
	label    string
	shortcut rune
	run      func(ctx context.Context) (string, error)
}

// Console renders usage and offers the maintenance operations as a menu.
type Console struct {
	app     *tview.Application
	usage   *tview.TextView
	log     *tview.TextView
	menu    *tview.List
	svc     Maintainer
	actions []action
	now     func() time.Time
	once    sync.Once
}

func New(svc Maintainer) *Console {
	usage := tview.NewTextView().SetDynamicColors(true)
	usage.SetBorder(true).SetTitle("Storage")

	logView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	logView.SetBorder(true).SetTitle("Log")

	menu := tview.NewList().ShowSecondaryText(false)
	menu.SetBorder(true).SetTitle("Actions")

	c := &Console{
		app:   tview.NewApplication(),
		usage: usage,
		log:   logView,
		menu:  menu,
		svc:   svc,
		now:   time.Now,
	}
	c.actions = []action{
		{"Refresh usage", 'r', c.refresh},
		{"Standard cleanup", 'c', counted("removed", svc.Cleanup)},
		{"Aggressive cleanup", 'a', counted("removed", svc.AggressiveCleanup)},
		{"Strip all attachments", 's', counted("stripped", svc.StripAllAttachments)},
		{"Clear local messages", 'x', counted("cleared", svc.ClearLocalMessages)},
		{"Re-check remote", 'p', c.reprobe},
	}
	for _, a := range c.actions {
		a := a
		menu.AddItem(a.label, "", a.shortcut, func() { c.execute(context.Background(), a) })
	}
	menu.AddItem("Quit", "", 'q', func() { c.app.Stop() })

	layout := tview.NewFlex().
		AddItem(menu, 32, 0, true).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(usage, 9, 0, false).
			AddItem(logView, 0, 1, false), 0, 1, false)

	c.app.SetRoot(layout, true).EnableMouse(true)
	c.app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape {
			c.app.Stop()
			return nil
		}
		return ev
	})
	return c
}

func counted(verb string, op func(context.Context) (int, error)) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		n, err := op(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %d message(s)", verb, n), nil
	}
}

// Run blocks until the user quits or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.once.Do(c.app.Stop)
	}()
	if _, err := c.refresh(ctx); err != nil {
		c.appendLog("[red]%v[-]", err)
	}
	return c.app.Run()
}

// execute runs one menu action on the UI goroutine and refreshes usage.
func (c *Console) execute(ctx context.Context, a action) {
	out, err := a.run(ctx)
	if err != nil {
		c.appendLog("[red]%s failed:[-] %v", a.label, err)
		return
	}
	c.appendLog("[green]%s[-] %s", a.label, out)
	if a.label != c.actions[0].label {
		if _, err := c.refresh(ctx); err != nil {
			c.appendLog("[red]%v[-]", err)
		}
	}
}

func (c *Console) refresh(ctx context.Context) (string, error) {
	u, err := c.svc.GetStorageUsage(ctx)
	if err != nil {
		return "", err
	}
	c.usage.SetText(FormatUsage(u))
	return fmt.Sprintf("%d file(s), %s", u.FileCount, humanBytes(u.TotalBytes)), nil
}

func (c *Console) reprobe(ctx context.Context) (string, error) {
	c.svc.InvalidateProbe()
	if c.svc.RemoteAvailable(ctx) {
		return "remote store reachable", nil
	}
	return "remote store unavailable, staying local", nil
}

func (c *Console) appendLog(format string, args ...any) {
	line := fmt.Sprintf("[yellow][%s][-] ", c.now().Format("15:04:05")) + fmt.Sprintf(format, args...)
	fmt.Fprintln(c.log, line)
	c.log.ScrollToEnd()
}

// FormatUsage renders usage for the storage panel.
func FormatUsage(u dm.Usage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Backend:   [lightgreen]%s[-]\n", u.Backend)
	fmt.Fprintf(&b, "Messages:  %d\n", u.MessageCount)
	fmt.Fprintf(&b, "Files:     %d (%s)\n", u.FileCount, humanBytes(u.TotalBytes))
	q := u.Local
	limit := "unbounded"
	if q.HardLimit > 0 {
		limit = humanBytes(q.HardLimit)
	}
	fmt.Fprintf(&b, "Local doc: %s of %s\n", humanBytes(q.EstimatedBytes), limit)
	if q.NearLimit {
		b.WriteString("[orange]Local storage is above its soft limit, run a cleanup[-]\n")
	}
	return b.String()
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
