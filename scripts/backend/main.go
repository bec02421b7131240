// Backend is a tiny upstream for running the proxy locally. Every response
// body starts with "backend=<name>" so the load test can tell hosts apart
// even though the proxy does not pass upstream headers through.
//
// Usage:
//
//	go run ./scripts/backend -port 9001 -name a
//	go run ./scripts/backend -port 9002 -name b -delay 50ms
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"
)

func main() {
	port := flag.Int("port", 9001, "port to listen on")
	name := flag.String("name", "", "name reported in responses (defaults to the port)")
	delay := flag.Duration("delay", 0, "artificial latency added to every response")
	flag.Parse()

	if *name == "" {
		*name = strconv.Itoa(*port)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, nil)).With(slog.String("backend", *name))

	mux := http.NewServeMux()
	mux.HandleFunc("/status/{code}", func(w http.ResponseWriter, r *http.Request) {
		code, err := strconv.Atoi(r.PathValue("code"))
		if err != nil || code < 200 || code > 599 {
			http.Error(w, "bad status code", http.StatusBadRequest)
			return
		}
		w.WriteHeader(code)
		fmt.Fprintf(w, "backend=%s status=%d\n", *name, code)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if *delay > 0 {
			time.Sleep(*delay)
		}
		log.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.RequestURI()),
			slog.String("from", r.RemoteAddr))
		fmt.Fprintf(w, "backend=%s path=%s time=%s\n", *name, r.URL.RequestURI(), time.Now().Format(time.RFC3339Nano))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("starting backend", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server failed", slog.Any("err", err))
		os.Exit(1)
	}
}
