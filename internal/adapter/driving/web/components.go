package web

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/releasewatch/internal/adapter/driving/web/viewmodel"
)

const stylesheet = `body{font-family:system-ui,sans-serif;margin:2rem;color:#1f2328}
table{border-collapse:collapse;width:100%}
th,td{text-align:left;padding:.4rem .8rem;border-bottom:1px solid #d0d7de}
.pending{color:#8c959f;font-style:italic}
.summary{margin-bottom:1rem;color:#59636e}`

// Layout wraps body in the HTML document shell.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<meta name="viewport" content="width=device-width, initial-scale=1">`+
			`<title>`+templ.EscapeString(title)+`</title><style>`+stylesheet+`</style></head><body>`)
		if err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err = io.WriteString(w, `</body></html>`)
		return err
	})
}

// Dashboard renders the tracked repositories table and the last cycle summary.
func Dashboard(m vm.DashboardViewModel) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		ew := &errWriter{w: w}

		ew.write(`<h1>Tracked repositories</h1>`)
		ew.write(`<p class="summary">` + strconv.Itoa(len(m.Repos)) + ` repositories, ` +
			strconv.Itoa(m.TotalSubscribers) + ` subscriptions. Generated ` +
			templ.EscapeString(m.GeneratedAt) + `.</p>`)

		if err := cycleSummary(m.LastCycle).Render(ctx, ew); err != nil {
			return err
		}

		if len(m.Repos) == 0 {
			ew.write(`<p id="empty">No repositories tracked yet. Subscribe from Telegram with /subscribe.</p>`)
		} else {
			ew.write(`<table id="repos"><thead><tr><th>Repository</th><th>Latest tag</th><th>Subscribers</th></tr></thead><tbody>`)
			for _, r := range m.Repos {
				if err := repoRow(r).Render(ctx, ew); err != nil {
					return err
				}
			}
			ew.write(`</tbody></table>`)
		}

		if m.HelpHTML != "" {
			// HelpHTML is sanitized by RenderMarkdown.
			ew.write(`<section id="help"><h2>Bot commands</h2>` + m.HelpHTML + `</section>`)
		}

		return ew.err
	})
}

func repoRow(r vm.RepoRowViewModel) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		tag := `<td>` + templ.EscapeString(r.LatestTag) + `</td>`
		if r.Pending {
			tag = `<td class="pending">fetch in progress</td>`
		}

		_, err := io.WriteString(w, `<tr><td><a href="`+templ.EscapeString(string(templ.URL(r.URL)))+`">`+
			templ.EscapeString(r.ShortName)+`</a></td>`+tag+
			`<td>`+strconv.Itoa(r.Subscribers)+`</td></tr>`)
		return err
	})
}

func cycleSummary(c *vm.CycleViewModel) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if c == nil {
			_, err := io.WriteString(w, `<p id="cycle">No release check has finished yet.</p>`)
			return err
		}

		_, err := fmt.Fprintf(w, `<p id="cycle">Last check %s finished %s in %s: %d repositories, %d changed, %d failed.</p>`,
			templ.EscapeString(c.ID), templ.EscapeString(c.FinishedAt), templ.EscapeString(c.Duration),
			c.Repositories, c.Changed, c.Failed)
		return err
	})
}

// errWriter keeps the first write error so a component can write several
// fragments and check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) write(s string) {
	_, _ = io.WriteString(e, s)
}
