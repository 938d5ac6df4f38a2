package main

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/cra88y/answerstream/config"
	srv "github.com/cra88y/answerstream/internal/server"
)

// demoCmd runs the gateway with a throwaway results page wired against
// canned search results, for eyeballing the stream end to end.
func demoCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the gateway with a local demo results page",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			s, err := srv.New(cfg)
			if err != nil {
				return err
			}

			e := echo.New()
			e.HideBanner = true
			e.Use(middleware.Recover())
			s.Register(e)
			e.GET("/", func(c echo.Context) error {
				return c.HTML(http.StatusOK, demoPage)
			})

			log.Printf("[DEMO] open http://localhost%s/", cfg.Server.Address)
			return e.Start(cfg.Server.Address)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file")
	return cmd
}

var demoPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>answerstream demo</title>
<style>
 body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
 #out { white-space: pre-wrap; line-height: 1.6; }
 #out a { color: #5e81ac; font-weight: bold; text-decoration: none; }
 #ask { width: 100%; padding: 0.4rem; margin-top: 1rem; }
</style></head>
<body>
<h3>answerstream demo</h3>
<div id="out"></div>
<input id="ask" placeholder="Ask a follow-up..." disabled>
<script>
const results = [
  {title: "Paris", url: "https://en.wikipedia.org/wiki/Paris", snippet: "Paris is the capital and largest city of France.", tab: "general"},
  {title: "France", url: "https://en.wikipedia.org/wiki/France", snippet: "France is a country in Western Europe.", tab: "general"}
];
const out = document.getElementById('out');
const ask = document.getElementById('ask');
let state = null;

async function consume(res) {
  const reader = res.body.getReader();
  const decoder = new TextDecoder();
  let buf = '';
  while (true) {
    const {done, value} = await reader.read();
    if (done) break;
    buf += decoder.decode(value, {stream: true});
    let idx;
    while ((idx = buf.indexOf('\n\n')) >= 0) {
      const frame = buf.slice(0, idx); buf = buf.slice(idx + 2);
      let type = '', data = '';
      for (const line of frame.split('\n')) {
        if (line.startsWith('event: ')) type = line.slice(7);
        if (line.startsWith('data: ')) data = line.slice(6);
      }
      if (!type) continue;
      const ev = data ? JSON.parse(data) : {};
      if (type === 'delta') out.append(ev.text);
      else if (type === 'citation') {
        const a = document.createElement('a');
        a.href = ev.url; a.target = '_blank'; a.textContent = ev.marker;
        out.appendChild(a);
      } else if (type === 'error') out.append(' [' + ev.kind + ': ' + ev.message + ']');
      else if (type === 'done') { state = ev.state || null; ask.disabled = !state; }
    }
  }
}

(async () => {
  const shell = await (await fetch('/shell', {
    method: 'POST', headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({q: 'What is the capital of France?', lang: 'en', results})
  })).json();
  const res = await fetch(shell.stream_path, {
    method: 'POST', headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({tk: shell.token, q: shell.query, lang: shell.lang, context: shell.context})
  });
  if (!res.ok) { out.textContent = 'stream rejected: ' + res.status; return; }
  await consume(res);
})();

ask.addEventListener('keydown', async (e) => {
  if (e.key !== 'Enter' || !state) return;
  const message = ask.value.trim() || 'Continue';
  ask.value = ''; ask.disabled = true;
  out.append('\n\nQ: ' + message + '\nA: ');
  const res = await fetch('/ai-followup', {
    method: 'POST', headers: {'Content-Type': 'application/json'},
    body: JSON.stringify({state, message})
  });
  if (res.ok) await consume(res); else out.append('[rejected: ' + res.status + ']');
});
</script>
</body></html>`
