package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"photo-compressor-go/internal/batch"
	"photo-compressor-go/internal/compressor"
	"photo-compressor-go/internal/config"
	"photo-compressor-go/internal/report"
	"photo-compressor-go/internal/scanner"
	"photo-compressor-go/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	compressor compressor.Compressor
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	cancel         context.CancelFunc
	runID          string
	currentStats   *statistics.Statistics
	results        []ResultView
	done           chan struct{}
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ScanRequest struct {
	Directory string `json:"directory"`
}

// CompressRequest overrides parts of the loaded configuration for one run.
// Zero values keep the configured setting.
type CompressRequest struct {
	InputDirectory  string `json:"input_directory,omitempty"`
	OutputDirectory string `json:"output_directory,omitempty"`
	Quality         int    `json:"quality,omitempty"`
	MaxWidth        int    `json:"max_width,omitempty"`
	MaxHeight       int    `json:"max_height,omitempty"`
}

type FileInfo struct {
	Path string `json:"path"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ResultView is the JSON form of one compressed file.
type ResultView struct {
	File         string  `json:"file"`
	Output       string  `json:"output,omitempty"`
	Success      bool    `json:"success"`
	OriginalMB   float64 `json:"original_mb"`
	CompressedMB float64 `json:"compressed_mb"`
	Reduction    float64 `json:"reduction"`
	Width        int     `json:"width,omitempty"`
	Height       int     `json:"height,omitempty"`
	Mode         string  `json:"mode,omitempty"`
	Error        string  `json:"error,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, comp compressor.Compressor) *Server {
	s := &Server{
		cfg:        cfg,
		log:        log,
		compressor: comp,
		router:     mux.NewRouter(),
		wsClients:  make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/results", s.handleResults).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop cancels a running batch and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.operationMutex.RLock()
	cancel, done := s.cancel, s.done
	s.operationMutex.RUnlock()
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	runID := s.runID
	stats := s.currentStats
	s.operationMutex.RUnlock()

	var statsData interface{}
	if stats != nil {
		statsData = map[string]interface{}{
			"summary": stats.GetSummary(),
			"files":   stats.Snapshot(),
		}
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"running":    running,
			"run_id":     runID,
			"clients":    s.clientCount(),
			"statistics": statsData,
		},
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	directory := req.Directory
	if directory == "" {
		directory = s.cfg.InputDirectory
	}

	sc := scanner.New(s.cfg.SupportedExtensions, true, s.log)
	files, err := sc.Scan(directory)
	if err != nil {
		if errors.Is(err, scanner.ErrInputNotFound) {
			s.writeError(w, "Directory does not exist", http.StatusBadRequest)
			return
		}
		s.writeError(w, fmt.Sprintf("Failed to scan directory: %v", err), http.StatusInternalServerError)
		return
	}

	list := make([]FileInfo, 0, len(files))
	var total int64
	for _, f := range files {
		list = append(list, FileInfo{Path: f.Path, Name: f.Name, Size: f.Size})
		total += f.Size
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"directory":   directory,
			"files":       list,
			"total_bytes": total,
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cfg := *s.cfg
	if req.InputDirectory != "" {
		cfg.InputDirectory = req.InputDirectory
	}
	if req.OutputDirectory != "" {
		cfg.OutputDirectory = req.OutputDirectory
	}
	if req.Quality != 0 {
		cfg.Quality = req.Quality
	}
	if req.MaxWidth != 0 {
		cfg.MaxWidth = req.MaxWidth
	}
	if req.MaxHeight != 0 {
		cfg.MaxHeight = req.MaxHeight
	}
	if err := cfg.Validate(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if info, err := os.Stat(cfg.InputDirectory); err != nil || !info.IsDir() {
		s.writeError(w, "Input directory does not exist", http.StatusBadRequest)
		return
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.isRunning = true
	s.cancel = cancel
	s.runID = ""
	s.currentStats = statistics.NewStatistics()
	s.results = nil
	s.done = make(chan struct{})
	stats, done := s.currentStats, s.done
	s.operationMutex.Unlock()

	go s.runCompressAsync(ctx, cancel, &cfg, stats, done)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running, cancel := s.isRunning, s.cancel
	s.operationMutex.RUnlock()

	if !running || cancel == nil {
		s.writeError(w, "No operation in progress", http.StatusConflict)
		return
	}
	cancel()

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopped",
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	results := make([]ResultView, len(s.results))
	copy(results, s.results)
	runID := s.runID
	s.operationMutex.RUnlock()

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"run_id":  runID,
			"results": results,
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) runCompressAsync(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, stats *statistics.Statistics, done chan struct{}) {
	defer close(done)
	defer cancel()

	hooks := batch.Hooks{
		OnStart: func(runID string, total int) {
			s.operationMutex.Lock()
			s.runID = runID
			s.operationMutex.Unlock()

			s.broadcastWSMessage("compress_started", map[string]interface{}{
				"run_id":           runID,
				"total":            total,
				"input_directory":  cfg.InputDirectory,
				"output_directory": cfg.OutputDirectory,
				"quality":          cfg.Quality,
			})
		},
		OnResult: func(index, total int, res compressor.CompressionResult) {
			view := newResultView(res)
			s.operationMutex.Lock()
			s.results = append(s.results, view)
			s.operationMutex.Unlock()

			s.broadcastWSMessage("file_processed", map[string]interface{}{
				"index":  index,
				"total":  total,
				"result": view,
			})
		},
	}

	quiet := report.New(io.Discard, io.Discard, true)
	b := batch.NewBatchCompressorWithHooks(cfg, s.log, stats, s.compressor, quiet, hooks)
	summary, err := b.Run(ctx)

	s.operationMutex.Lock()
	s.isRunning = false
	s.cancel = nil
	if summary != nil && s.runID == "" {
		s.runID = summary.RunID
	}
	s.operationMutex.Unlock()

	if err != nil {
		s.broadcastWSMessage("compress_error", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	s.broadcastWSMessage("compress_completed", map[string]interface{}{
		"run_id":     summary.RunID,
		"succeeded":  summary.Succeeded,
		"failed":     summary.Failed,
		"statistics": stats.Snapshot(),
	})
}

func newResultView(res compressor.CompressionResult) ResultView {
	view := ResultView{
		File:    res.FileName(),
		Success: res.Success,
	}
	if !res.Success {
		if res.Error != nil {
			view.Error = res.Error.Error()
		}
		return view
	}
	view.Output = res.OutputPath
	view.OriginalMB = res.OriginalMB()
	view.CompressedMB = res.CompressedMB()
	view.Reduction = res.PercentageSaved
	view.Width = res.Width
	view.Height = res.Height
	view.Mode = res.Mode.String()
	return view
}

func (s *Server) clientCount() int {
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()
	return len(s.wsClients)
}

// broadcastWSMessage sends a message to every connected client. Writes are
// serialized under wsMutex; a connection that fails a write is dropped.
func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}
