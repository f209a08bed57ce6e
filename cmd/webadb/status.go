package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Li-Yaosong/webadb2/cmd/webadb/logview"
	"github.com/Li-Yaosong/webadb2/pkg/discovery"
	"github.com/Li-Yaosong/webadb2/pkg/log"
	"github.com/Li-Yaosong/webadb2/pkg/mirror"
)

// defaultPacketLimit caps /packets when no limit is given.
const defaultPacketLimit = 100

// deviceInfo is one /devices entry.
type deviceInfo struct {
	Serial    string `json:"serial"`
	Name      string `json:"name,omitempty"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
	Selected  bool   `json:"selected"`
	Connected bool   `json:"connected"`
}

// sessionInfo is the /session response.
type sessionInfo struct {
	State        string     `json:"state"`
	ConnectionID string     `json:"connection_id,omitempty"`
	Serial       string     `json:"serial,omitempty"`
	ConnectedAt  *time.Time `json:"connected_at,omitempty"`
	Mirror       string     `json:"mirror,omitempty"`
	Frames       int64      `json:"frames,omitempty"`
	VideoBytes   int64      `json:"video_bytes,omitempty"`
}

// packetInfo is one /packets entry.
type packetInfo struct {
	Timestamp    time.Time `json:"timestamp"`
	ConnectionID string    `json:"connection_id"`
	Direction    string    `json:"direction"`
	Layer        string    `json:"layer"`
	Category     string    `json:"category"`
	Serial       string    `json:"serial,omitempty"`
	Transport    string    `json:"transport,omitempty"`
	Size         int       `json:"size,omitempty"`
	Data         []byte    `json:"data,omitempty"`
	Truncated    bool      `json:"truncated,omitempty"`
	State        string    `json:"state,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// newStatusRouter serves read-only views of the client.
func newStatusRouter(a *App) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version})
	})
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	r.Get("/devices", a.handleDevices)
	r.Get("/session", a.handleSession)
	r.Get("/packets", a.handlePackets)
	r.Get("/packets/stats", a.handlePacketStats)
	return r
}

func (a *App) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices := a.refresh(r.Context())
	var selected, connected string
	if dev := a.manager.Selected(); dev != nil {
		selected = dev.Serial()
	}
	if sess := a.manager.Current(); sess != nil {
		connected = sess.Device.Serial()
	}

	options := optionsBySerial(devices)
	out := make([]deviceInfo, 0, len(devices))
	for _, dev := range devices {
		out = append(out, deviceInfo{
			Serial:    dev.Serial(),
			Name:      dev.Name(),
			Kind:      dev.Kind().String(),
			Text:      options[dev.Serial()],
			Selected:  dev.Serial() == selected,
			Connected: dev.Serial() == connected,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handleSession(w http.ResponseWriter, r *http.Request) {
	info := sessionInfo{State: a.manager.State().String()}
	if sess := a.manager.Current(); sess != nil {
		at := sess.ConnectedAt
		info.ConnectionID = sess.ID
		info.Serial = sess.Device.Serial()
		info.ConnectedAt = &at
	}
	if a.mirror != nil {
		info.Mirror = a.mirror.Status().String()
		if stats, ok := a.mirror.Stats(); ok {
			info.Frames, info.VideoBytes = stats.Frames, stats.Bytes
		}
	} else {
		info.Mirror = mirror.StateStopped.String()
	}
	writeJSON(w, http.StatusOK, info)
}

// handlePackets returns the newest retained events matching the query
// (serial, conn, direction, layer, category), oldest first.
func (a *App) handlePackets(w http.ResponseWriter, r *http.Request) {
	filter, err := packetFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	limit := defaultPacketLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	events := a.packets.Filter(filter)
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]packetInfo, 0, len(events))
	for _, e := range events {
		out = append(out, toPacketInfo(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *App) handlePacketStats(w http.ResponseWriter, r *http.Request) {
	stats := logview.Collect(a.packets.Snapshot())
	writeJSON(w, http.StatusOK, map[string]any{
		"retained":  stats.TotalEvents,
		"total":     a.packets.Total(),
		"in":        stats.EventsByDirection[log.DirectionIn],
		"out":       stats.EventsByDirection[log.DirectionOut],
		"bytes_in":  stats.Bytes[log.DirectionIn],
		"bytes_out": stats.Bytes[log.DirectionOut],
		"truncated": stats.Truncated,
		"errors":    stats.Errors,
	})
}

func packetFilter(r *http.Request) (log.Filter, error) {
	q := r.URL.Query()
	opts := logview.FilterOptions{
		ConnID:    q.Get("conn"),
		Serial:    q.Get("serial"),
		Direction: q.Get("direction"),
		Layer:     q.Get("layer"),
		Category:  q.Get("category"),
	}
	return opts.Filter()
}

func toPacketInfo(e log.Event) packetInfo {
	p := packetInfo{
		Timestamp:    e.Timestamp,
		ConnectionID: e.ConnectionID,
		Direction:    e.Direction.String(),
		Layer:        e.Layer.String(),
		Category:     e.Category.String(),
		Serial:       e.Serial,
		Transport:    e.Transport,
	}
	switch {
	case e.Frame != nil:
		p.Size, p.Data, p.Truncated = e.Frame.Size, e.Frame.Data, e.Frame.Truncated
	case e.StateChange != nil:
		p.State = e.StateChange.Entity.String() + " " + e.StateChange.OldState + " -> " + e.StateChange.NewState
	case e.Error != nil:
		p.Error = e.Error.Message
	}
	return p
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// optionsBySerial maps each serial to its display text.
func optionsBySerial(devices []discovery.Device) map[string]string {
	out := make(map[string]string, len(devices))
	for _, opt := range discovery.Options(devices) {
		out[opt.Key] = opt.Text
	}
	return out
}
