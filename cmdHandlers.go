package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/mdobak/go-xerrors"

	"sourcetrace/db"
	"sourcetrace/exif"
	"sourcetrace/extract"
	"sourcetrace/models"
	"sourcetrace/search"
	"sourcetrace/synth"
	"sourcetrace/utils"
)

type apiError struct {
	Message string `json:"message"`
}

type analyzeRequest struct {
	ImageURL string         `json:"image_url,omitempty"`
	Tags     exif.TagSet    `json:"exif_tags,omitempty"`
	Manifest map[string]any `json:"c2pa_manifest,omitempty"`
}

type analyzeResponse struct {
	Success          bool                `json:"success"`
	Analysis         models.Verdict      `json:"analysis"`
	Signals          models.FusedSignals `json:"signals"`
	ProcessingTimeMs int64               `json:"processing_time_ms"`
}

type outreachRequest struct {
	OwnerInfo     models.OwnerInfo     `json:"owner_info"`
	LicenseParams models.LicenseParams `json:"license_params"`
}

type outreachResponse struct {
	Success          bool                 `json:"success"`
	Outreach         models.OutreachDraft `json:"outreach"`
	ProcessingTimeMs int64                `json:"processing_time_ms"`
}

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode JSON response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, apiError{Message: message})
}

func applyCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
}

// saveUploadedFile persists an uploaded image to a temp file and returns its path.
func saveUploadedFile(fileHeader *multipart.FileHeader) (string, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer src.Close()

	if err := utils.CreateFolder(filepath.Join("tmp", "uploads")); err != nil {
		return "", err
	}

	suffix := strings.ToLower(filepath.Ext(fileHeader.Filename))
	tempFile, err := os.CreateTemp(filepath.Join("tmp", "uploads"), "upload-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tempFile, src); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", fmt.Errorf("failed to persist upload: %w", err)
	}
	tempFile.Close()

	return tempFile.Name(), nil
}

// downloadImageFromURL fetches a remote image to a temp file.
func downloadImageFromURL(url string) (string, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("failed to download image from URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download image from URL: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(strings.ToLower(contentType), "image") {
		return "", fmt.Errorf("URL does not point to an image (content-type: %s)", contentType)
	}

	suffix := filepath.Ext(strings.Split(url, "?")[0])
	if suffix == "" {
		suffix = ".jpg"
	}

	if err := utils.CreateFolder(filepath.Join("tmp", "uploads")); err != nil {
		return "", err
	}
	tempFile, err := os.CreateTemp(filepath.Join("tmp", "uploads"), "download-*"+suffix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := io.Copy(tempFile, resp.Body); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", fmt.Errorf("failed to persist download: %w", err)
	}
	tempFile.Close()

	return tempFile.Name(), nil
}

func newAnalyzeHandler(pipeline *analysisPipeline) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		applyCORS(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		started := time.Now()
		input := analysisInput{}
		source := ""
		var tempPath string
		defer func() {
			if tempPath != "" {
				if err := os.Remove(tempPath); err != nil {
					logger.WarnContext(ctx, "failed to clean up temp file",
						slog.String("path", tempPath), slog.Any("error", err))
				}
			}
		}()

		contentType := r.Header.Get("Content-Type")
		switch {
		case strings.HasPrefix(contentType, "multipart/form-data"):
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid upload payload")
				return
			}
			files := r.MultipartForm.File["file"]
			if len(files) == 0 {
				writeJSONError(w, http.StatusBadRequest, "no file selected")
				return
			}
			fileHeader := files[0]
			if !allowedExtensions[strings.ToLower(filepath.Ext(fileHeader.Filename))] {
				writeJSONError(w, http.StatusBadRequest, "invalid file type (allowed: jpg, jpeg, png, gif)")
				return
			}
			path, err := saveUploadedFile(fileHeader)
			if err != nil {
				logger.ErrorContext(ctx, "failed to save upload", slog.Any("error", xerrors.New(err)))
				writeJSONError(w, http.StatusInternalServerError, "internal error while preparing upload")
				return
			}
			tempPath = path
			input.ImagePath = path
			source = fileHeader.Filename
			logger.InfoContext(ctx, "analysis request received",
				slog.String("mode", "upload"), slog.String("filename", fileHeader.Filename))

		case strings.Contains(contentType, "application/json"):
			var req analyzeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid request payload")
				return
			}
			if req.ImageURL == "" && len(req.Tags) == 0 && req.Manifest == nil {
				writeJSONError(w, http.StatusBadRequest, "no file or image_url provided")
				return
			}
			input.ImageURL = req.ImageURL
			source = req.ImageURL
			if len(req.Tags) > 0 || req.Manifest != nil {
				input.Tags = req.Tags
				input.Manifest = req.Manifest
				input.HasInline = true
			} else {
				path, err := downloadImageFromURL(req.ImageURL)
				if err != nil {
					writeJSONError(w, http.StatusBadRequest, err.Error())
					return
				}
				tempPath = path
				input.ImagePath = path
			}
			logger.InfoContext(ctx, "analysis request received",
				slog.String("mode", "url"), slog.String("imageURL", req.ImageURL))

		default:
			writeJSONError(w, http.StatusBadRequest, "no file or image_url provided")
			return
		}

		verdict, signals := pipeline.run(ctx, input, nil)
		elapsed := time.Since(started)
		pipeline.persist(ctx, source, verdict, signals, elapsed)

		logger.InfoContext(ctx, "analysis completed",
			slog.Int("confidence", verdict.Confidence),
			slog.String("recommendation", verdict.Recommendation),
			slog.Bool("degraded", verdict.Degraded),
			slog.Int64("elapsedMs", elapsed.Milliseconds()))

		writeJSON(w, http.StatusOK, analyzeResponse{
			Success:          true,
			Analysis:         verdict,
			Signals:          signals,
			ProcessingTimeMs: elapsed.Milliseconds(),
		})
	}
}

func newOutreachHandler(engine *synth.Engine) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		applyCORS(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		started := time.Now()

		var req outreachRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "request must be JSON")
			return
		}
		if req.OwnerInfo.Username == "" || req.OwnerInfo.Platform == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid owner_info: username and platform are required")
			return
		}
		if req.LicenseParams.UseCase == "" || req.LicenseParams.Scope == "" ||
			req.LicenseParams.Territory == "" || req.LicenseParams.Compensation == "" {
			writeJSONError(w, http.StatusBadRequest, "invalid license_params: use_case, scope, territory and compensation are required")
			return
		}

		logger.InfoContext(ctx, "outreach generation request",
			slog.String("username", req.OwnerInfo.Username),
			slog.String("platform", req.OwnerInfo.Platform))

		draft := engine.DraftOutreach(ctx, req.OwnerInfo, req.LicenseParams)
		elapsed := time.Since(started)

		logger.InfoContext(ctx, "outreach generated",
			slog.Bool("degraded", draft.Degraded),
			slog.Int64("elapsedMs", elapsed.Milliseconds()))

		writeJSON(w, http.StatusOK, outreachResponse{
			Success:          true,
			Outreach:         draft,
			ProcessingTimeMs: elapsed.Milliseconds(),
		})
	}
}

func newAnalysesHandler(dbClient db.Client) http.HandlerFunc {
	logger := utils.GetLogger()
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		applyCORS(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		if dbClient == nil {
			writeJSON(w, http.StatusOK, []models.Analysis{})
			return
		}

		records, err := dbClient.RecentAnalyses(limit)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load analyses", slog.Any("error", xerrors.New(err)))
			writeJSONError(w, http.StatusInternalServerError, "failed to load analyses")
			return
		}
		if records == nil {
			records = []models.Analysis{}
		}
		writeJSON(w, http.StatusOK, records)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	applyCORS(w)
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": "1.0.0",
		"modules": map[string]string{
			"exif":   "loaded",
			"c2pa":   "loaded",
			"search": "loaded",
			"synth":  "loaded",
		},
	})
}

func serve(protocol, port string) {
	logger := utils.GetLogger()
	ctx := context.Background()
	protocol = strings.ToLower(protocol)
	var allowOriginFunc = func(r *http.Request) bool {
		return true
	}

	cfg := synth.ConfigFromEnv()
	var reasoner synth.ReasoningClient
	if ok, reason := synth.CheckAPIKey(cfg.APIKey); ok {
		client, err := synth.NewGeminiClient(ctx, cfg)
		if err != nil {
			log.Printf("WARNING: reasoning client unavailable: %v", err)
			log.Println("The server will start but every verdict will be a degraded fallback.")
		} else {
			reasoner = client
			log.Printf("Reasoning service configured (model %s)", cfg.Model)
		}
	} else {
		log.Printf("WARNING: %s", reason)
		log.Println("The server will start but every verdict will be a degraded fallback.")
	}
	engine := synth.NewEngine(cfg, reasoner)

	extractorURL := utils.GetEnv("EXTRACTOR_SERVICE_URL", "http://localhost:5002")
	extractor := extract.NewClient(extractorURL)
	if err := extractor.HealthCheck(); err != nil {
		log.Printf("WARNING: %v", err)
		log.Println("Embedded metadata and credential signals will be empty until the extractor is reachable.")
	} else {
		log.Println("Extraction sidecar is available")
	}

	dbClient, err := db.NewDBClient()
	if err != nil {
		logger.ErrorContext(ctx, "database unavailable, falling back to file store",
			slog.Any("error", xerrors.New(err)))
		dbClient = nil
	}
	if dbClient != nil {
		defer dbClient.Close()
	}

	pipeline := &analysisPipeline{
		engine:    engine,
		extractor: extractor,
		searcher:  search.NewClient(),
		dbClient:  dbClient,
	}
	controller := newSocketController(pipeline)

	server := socketio.NewServer(&engineio.Options{
		PingTimeout:  60 * time.Second,
		PingInterval: 25 * time.Second,
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: allowOriginFunc,
			},
			&polling.Transport{
				CheckOrigin: allowOriginFunc,
			},
		},
	})

	server.OnConnect("/", func(socket socketio.Conn) error {
		socket.SetContext("")
		log.Printf("CONNECTED: %s, remote addr: %s\n", socket.ID(), socket.RemoteAddr())
		return nil
	})

	server.OnEvent("/", "analyzeUrl", func(socket socketio.Conn, msg string) {
		// Run handler in goroutine to prevent blocking, with panic recovery
		go func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("panic in handleAnalyzeURL for socket %s: %v\n", socket.ID(), r)
					socket.Emit("analysisError", map[string]string{"message": "internal server error during processing"})
				}
			}()
			controller.handleAnalyzeURL(socket, msg)
		}()
	})

	server.OnError("/", func(s socketio.Conn, e error) {
		log.Println("meet error:", e)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		log.Printf("Socket disconnected - ID: %s, Reason: %s\n", s.ID(), reason)
	})

	go func() {
		if err := server.Serve(); err != nil {
			log.Fatalf("socketio listen error: %s\n", err)
		}
	}()
	defer server.Close()

	serveHTTPS := protocol == "https"

	mux := http.NewServeMux()
	mux.Handle("/socket.io/", server)
	mux.HandleFunc("/api/analyze", newAnalyzeHandler(pipeline))
	mux.HandleFunc("/api/generate-outreach", newOutreachHandler(engine))
	mux.HandleFunc("/api/analyses", newAnalysesHandler(dbClient))
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/", http.FileServer(http.Dir("static")))

	serveHTTP(server, serveHTTPS, port, mux)
}

func serveHTTP(socketServer *socketio.Server, serveHTTPS bool, port string, handler http.Handler) {
	if handler == nil {
		handler = socketServer
	}
	if serveHTTPS {
		httpsAddr := ":" + port
		httpsServer := &http.Server{
			Addr: httpsAddr,
			TLSConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			Handler: handler,
		}

		certKey := utils.GetEnv("CERT_KEY", "")
		certFile := utils.GetEnv("CERT_FILE", "")
		if certKey == "" || certFile == "" {
			log.Fatal("Missing cert")
		}

		log.Printf("Starting HTTPS server on %s\n", httpsAddr)
		if err := httpsServer.ListenAndServeTLS(certFile, certKey); err != nil {
			log.Fatalf("HTTPS server ListenAndServeTLS: %v", err)
		}
	}

	log.Printf("Starting HTTP server on port %v", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("HTTP server ListenAndServe: %v", err)
	}
}
