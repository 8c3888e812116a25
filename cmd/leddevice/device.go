package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
)

// ledDevice mimics the LED firmware's HTTP surface.
type ledDevice struct {
	mu       sync.Mutex
	level    float64
	commands uint64
}

func (d *ledDevice) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/test", d.HandleTest)
	r.Get("/command", d.HandleCommand)
	r.Get("/state", d.HandleState)
	return r
}

func (d *ledDevice) HandleTest(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

func (d *ledDevice) HandleCommand(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("led")
	level, err := strconv.ParseFloat(raw, 64)
	if err != nil || level < 0 || level > 1 {
		slog.Warn("Rejected LED command", "led", raw, "remote", r.RemoteAddr)
		http.Error(w, "led must be a number between 0 and 1", http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	d.level = level
	d.commands++
	d.mu.Unlock()

	slog.Info("LED level set", "level", level, "bar", bar(level))
	fmt.Fprintf(w, "LED set to %.2f", level)
}

func (d *ledDevice) HandleState(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	level, n := d.level, d.commands
	d.mu.Unlock()
	fmt.Fprintf(w, "level=%.2f commands=%d", level, n)
}

// bar renders level as a ten-cell gauge for the log.
func bar(level float64) string {
	n := int(level*10 + 0.5)
	b := make([]rune, 10)
	for i := range b {
		if i < n {
			b[i] = '#'
		} else {
			b[i] = '.'
		}
	}
	return string(b)
}
