// Package profiling provides opt-in pprof and Pyroscope profiling.
package profiling

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
)

// StartPprofServer starts a pprof server on localhost when
// ENABLE_PROFILING=true. The port defaults to 6060 and can be overridden
// with PPROF_PORT.
func StartPprofServer() {
	if os.Getenv("ENABLE_PROFILING") != "true" {
		return
	}

	port := os.Getenv("PPROF_PORT")
	if port == "" {
		port = "6060"
	}

	// Localhost only; profiles are not for external consumption.
	addr := "localhost:" + port

	go func() {
		log.Printf("Starting pprof server on %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Printf("pprof server error: %v", err)
		}
	}()
}
