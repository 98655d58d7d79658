package main

import (
	"compress/gzip"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

// Global debug flag
var DebugMode bool

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// getClientIP returns the client address, honouring X-Forwarded-For when
// running behind a reverse proxy
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// gzipResponseWriter wraps http.ResponseWriter to provide gzip compression
type gzipResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w gzipResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

// gzipHandler wraps an http.HandlerFunc with gzip compression
func gzipHandler(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			fn(w, r)
			return
		}

		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Set("Vary", "Accept-Encoding")

		gz := gzip.NewWriter(w)
		defer gz.Close()

		gzipW := gzipResponseWriter{Writer: gz, ResponseWriter: w}
		fn(gzipW, r)
	}
}

// httpLogger creates a logging middleware that logs requests in Apache
// combined log format
func httpLogger(logFile *os.File, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// WebSocket upgrades are logged immediately since the connection
		// is hijacked afterwards
		if r.Header.Get("Upgrade") == "websocket" {
			logLine := fmt.Sprintf("%s - - [%s] \"%s %s %s\" 101 - \"%s\" \"%s\" 0.000ms\n",
				getClientIP(r),
				start.Format("02/Jan/2006:15:04:05 -0700"),
				r.Method, r.RequestURI, r.Proto,
				orDash(r.Referer()), orDash(r.Header.Get("User-Agent")),
			)
			if _, err := logFile.WriteString(logLine); err != nil {
				log.Printf("Error writing to access log: %v", err)
			}
			next.ServeHTTP(w, r)
			return
		}

		wrapped := &responseWriter{ResponseWriter: w, statusCode: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start)

		logLine := fmt.Sprintf("%s - - [%s] \"%s %s %s\" %d %d \"%s\" \"%s\" %.3fms\n",
			getClientIP(r),
			start.Format("02/Jan/2006:15:04:05 -0700"),
			r.Method, r.RequestURI, r.Proto,
			wrapped.statusCode, wrapped.written,
			orDash(r.Referer()), orDash(r.Header.Get("User-Agent")),
			float64(duration.Microseconds())/1000.0,
		)
		if _, err := logFile.WriteString(logLine); err != nil {
			log.Printf("Error writing to access log: %v", err)
		}
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// corsMiddleware adds CORS headers to all responses if enabled in config
func corsMiddleware(config *Config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if config.Server.EnableCORS {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	configDir := flag.String("config-dir", ".", "Directory containing configuration files")
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Environment variable takes precedence over the CLI flag
	DebugMode = *debug
	if debugEnv := os.Getenv("DEBUG"); debugEnv != "" {
		DebugMode = debugEnv == "true" || debugEnv == "1" || debugEnv == "yes"
	}
	if DebugMode {
		log.Println("Debug mode enabled")
	}

	configPath := *configFile
	if *configDir != "." {
		configPath = filepath.Join(*configDir, *configFile)
	}
	config, err := LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	renderer := &Renderer{
		Width:      config.Display.PanelWidth,
		Height:     config.Display.PanelHeight,
		TrimWarmup: config.Display.WarmupTrim,
	}
	shell := NewAppShell(renderer, config.DefaultParams())
	hub := NewRefreshHub()
	api := NewAPIServer(shell, hub, config)

	var mqttPub *MQTTPublisher
	if config.MQTT.Enabled {
		mqttPub = NewMQTTPublisher(config.MQTT, shell)
		if err := mqttPub.Start(); err != nil {
			log.Printf("Warning: MQTT publisher failed to start: %v", err)
			mqttPub = nil
		}
	}

	shell.OnUpdate = func(ev ShellEvent) {
		hub.Broadcast(ev)
		if mqttPub != nil && ev.Type == "loaded" {
			go mqttPub.PublishEvent(ev)
		}
	}

	if config.Data.AutoLoad != "" {
		path := filepath.Join(config.Data.Dir, config.Data.AutoLoad)
		if err := shell.LoadFile(path); err != nil {
			log.Printf("Warning: auto-load of %s failed: %v", path, err)
		} else {
			log.Printf("Auto-loaded %s", path)
		}
	}

	StartVersionChecker(config.VersionCheck.Enabled, config.VersionCheck.IntervalMinutes)

	// API routes
	http.HandleFunc("/api/files", gzipHandler(api.HandleFiles))
	http.HandleFunc("/api/load", api.HandleLoad)
	http.HandleFunc("/api/params", gzipHandler(api.HandleParams))
	http.HandleFunc("/api/panels", gzipHandler(api.HandlePanels))
	http.HandleFunc("/api/plot", api.HandlePlot)
	http.HandleFunc("/api/summary", gzipHandler(api.HandleSummary))
	http.HandleFunc("/api/correlation", gzipHandler(api.HandleCorrelation))
	http.HandleFunc("/api/spectrum", gzipHandler(api.HandleSpectrum))
	http.HandleFunc("/api/status", gzipHandler(api.HandleStatus))
	http.HandleFunc("/health", api.HandleHealth)
	http.HandleFunc("/ws", hub.HandleWS)

	if config.Prometheus.Enabled {
		http.Handle("/metrics", PrometheusHandler())
		log.Printf("Prometheus metrics enabled at /metrics")
	}

	// Serve static files
	fs := http.FileServer(http.Dir(config.Server.StaticDir))
	http.Handle("/", fs)

	var handler http.Handler = http.DefaultServeMux
	handler = corsMiddleware(config, handler)

	var logFile *os.File
	if config.Logging.AccessLogEnabled {
		logFile, err = os.OpenFile(config.Logging.AccessLogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatalf("Failed to open access log: %v", err)
		}
		defer logFile.Close()
		log.Printf("HTTP request logging to: %s", config.Logging.AccessLogFile)
		handler = httpLogger(logFile, handler)
	}

	server := &http.Server{
		Addr:    config.Server.Listen,
		Handler: handler,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		if mqttPub != nil {
			mqttPub.Stop()
		}
		if err := server.Close(); err != nil {
			log.Printf("Error closing server: %v", err)
		}
	}()

	log.Printf("Server listening on %s", config.Server.Listen)
	log.Printf("Open http://localhost%s in your browser", config.Server.Listen)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped")
}
