package main

import (
	"html/template"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// newHandler routes websocket upgrades on cfg.WSPath and serves the
// landing page, static assets and metrics. sessions tracks running
// websocket sessions so shutdown can wait for them.
func newHandler(cfg config, reg *registry, ticker *mTicker, sessions *sync.WaitGroup) http.Handler {
	r := mux.NewRouter()
	r.Use(corsMiddleware(cfg.Origin))

	r.Methods("OPTIONS").HandlerFunc(preflight)
	r.Methods("GET").Path(cfg.WSPath).Handler(newWsHandler(cfg, reg, ticker, sessions))
	r.Methods("GET").Path("/stats").Handler(statsHandler{})
	if cfg.StaticDir != "" {
		r.Methods("GET").PathPrefix("/static/").Handler(
			http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	}
	r.Methods("GET").Path("/").Handler(indexHandler{wsPath: cfg.WSPath, staticDir: cfg.StaticDir})

	return r
}

type wsHandler struct {
	cfg      config
	reg      *registry
	ticker   *mTicker
	sessions *sync.WaitGroup
	upgrader *websocket.Upgrader
}

func newWsHandler(cfg config, reg *registry, ticker *mTicker, sessions *sync.WaitGroup) wsHandler {
	return wsHandler{
		cfg:      cfg,
		reg:      reg,
		ticker:   ticker,
		sessions: sessions,
		upgrader: &websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.Origin),
		},
	}
}

func (wsh wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsh.sessions.Add(1)
	defer wsh.sessions.Done()

	ws, err := wsh.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		log.Printf("websocket handshake from %s failed: %v", r.RemoteAddr, err)
		return
	}

	c := newConnection(newWebsocketInteractor(ws, wsh.cfg), r.RemoteAddr, wsh.cfg.SendQueue)
	newSession(c, wsh.reg, wsh.ticker).run()
}

// checkOrigin accepts requests without an Origin header and, when origin
// is set, requests whose Origin matches it exactly.
func checkOrigin(origin string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if origin == "" {
			return true
		}
		h := r.Header.Get("Origin")
		return h == "" || h == origin
	}
}

func corsMiddleware(origin string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allow := origin
			if allow == "" {
				allow = r.Header.Get("Origin")
			}
			if allow == "" {
				allow = "*"
			} else {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Origin", allow)
			next.ServeHTTP(w, r)
		})
	}
}

func preflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	if h := r.Header.Get("Access-Control-Request-Headers"); h != "" {
		w.Header().Set("Access-Control-Allow-Headers", h)
	}
	w.WriteHeader(http.StatusNoContent)
}

type statsHandler struct{}

func (statsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	m.writeOnce(w)
}

type indexHandler struct {
	wsPath    string
	staticDir string
}

func (ih indexHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ih.staticDir != "" {
		index := filepath.Join(ih.staticDir, "index.html")
		if _, err := os.Stat(index); err == nil {
			http.ServeFile(w, r, index)
			return
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := webTemplate.Execute(w, templateArgs{Path: ih.wsPath}); err != nil {
		log.Printf("Error writing landing page: %v", err)
	}
}

type templateArgs struct {
	Path string
}

var webTemplate = template.Must(template.New("webTemplate").Parse(`<!DOCTYPE html>
<html>
<head>
<title>wsrelay</title>
<script type="text/javascript">
window.addEventListener("load", function() {
    var log = document.getElementById("log");
    var msg = document.getElementById("msg");
    var scheme = location.protocol === "https:" ? "wss://" : "ws://";
    var conn;

    function appendLog(text, cls) {
        var d = document.createElement("div");
        d.className = cls || "";
        d.textContent = text;
        var doScroll = log.scrollTop == log.scrollHeight - log.clientHeight;
        log.appendChild(d);
        if (doScroll) {
            log.scrollTop = log.scrollHeight - log.clientHeight;
        }
    }

    document.getElementById("form").addEventListener("submit", function(evt) {
        evt.preventDefault();
        if (!conn || !msg.value) {
            return;
        }
        conn.send(JSON.stringify({message: msg.value, timestamp: new Date().toISOString()}));
        msg.value = "";
    });

    if (!window["WebSocket"]) {
        appendLog("Your browser does not support WebSockets.", "status");
        return;
    }
    conn = new WebSocket(scheme + location.host + {{.Path}});
    conn.onopen = function() {
        appendLog("Connected.", "status");
    };
    conn.onclose = function() {
        appendLog("Connection closed.", "status");
    };
    conn.onmessage = function(evt) {
        var env;
        try {
            env = JSON.parse(evt.data);
        } catch (e) {
            appendLog(evt.data);
            return;
        }
        appendLog("[" + env.type + "] " + env.message + (env.timestamp ? " (" + env.timestamp + ")" : ""), env.type);
    };
    msg.focus();
});
</script>
<style type="text/css">
body { font-family: sans-serif; margin: 0; padding: 0.5em; background: gray; }
#log { background: white; padding: 0.5em; position: absolute; top: 2.5em; left: 0.5em; right: 0.5em; bottom: 3em; overflow: auto; }
#form { position: absolute; bottom: 0.5em; left: 0.5em; right: 0.5em; }
.status { font-weight: bold; }
.echo { color: blue; }
.broadcast { color: green; }
.error { color: red; }
</style>
</head>
<body>
<h3>wsrelay {{.Path}}</h3>
<div id="log"></div>
<form id="form">
    <input type="submit" value="Send" />
    <input type="text" id="msg" size="64"/>
</form>
</body>
</html>
`))
