package pipeline

import (
	"encoding/json"
	"net/http"

	"github.com/floodsnet/floodprep/service/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHandler returns the status server of the run
func (p *Pipeline) NewHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/status", p.GetStatusHandler).Methods("GET")
	r.HandleFunc("/status/events/{key}", p.GetEventHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

// GetStatusHandler returns the tasks and the events of the run
func (p *Pipeline) GetStatusHandler(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, req, p.status.snapshot())
}

// GetEventHandler returns the outcome of an event (all its tiles)
func (p *Pipeline) GetEventHandler(w http.ResponseWriter, req *http.Request) {
	events := p.status.find(mux.Vars(req)["key"])
	if len(events) == 0 {
		w.WriteHeader(404)
		return
	}
	writeJSON(w, req, events)
}

func writeJSON(w http.ResponseWriter, req *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger(req.Context()).Sugar().Warnf("encode: %v", err)
	}
}
