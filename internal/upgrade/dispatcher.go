// Package upgrade routes protocol-upgrade requests on the shared listener.
//
// Routes are consulted in registration order and only for WebSocket upgrade
// requests whose path equals a reserved path exactly. Everything else,
// including upgrades on unreserved paths, reaches the fallback handler
// untouched, which is where the browser push service and the REST API live.
// The device gateway must be the first route so its path is claimed before
// any other realtime service sees the request.
package upgrade

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Route struct {
	Name    string
	Path    string
	Handler http.Handler
}

type Dispatcher struct {
	routes   []Route
	fallback http.Handler
	log      *zap.Logger
}

func NewDispatcher(fallback http.Handler, log *zap.Logger, routes ...Route) *Dispatcher {
	return &Dispatcher{
		routes:   routes,
		fallback: fallback,
		log:      log,
	}
}

// Match returns the route claiming r, if any.
func (d *Dispatcher) Match(r *http.Request) (Route, bool) {
	if !websocket.IsWebSocketUpgrade(r) {
		return Route{}, false
	}
	for _, rt := range d.routes {
		if r.URL.Path == rt.Path {
			return rt, true
		}
	}
	return Route{}, false
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rt, ok := d.Match(r); ok {
		d.log.Debug("upgrade claimed",
			zap.String("route", rt.Name),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr))
		rt.Handler.ServeHTTP(w, r)
		return
	}
	d.fallback.ServeHTTP(w, r)
}
