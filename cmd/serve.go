package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgpkg "github.com/KaramelBytes/tabloom-cli/internal/config"
	"github.com/KaramelBytes/tabloom-cli/internal/pipeline"
)

var (
	serveAddr     string
	serveProvider string
	serveModel    string
)

// multipartOverhead is allowed on top of the upload limit for form fields
// and part headers.
const multipartOverhead = 1 << 20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the pipeline over HTTP (POST /runs with a multipart \"file\")",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		p, err := buildProvider(c, serveProvider, serveModel)
		if err != nil {
			return err
		}
		f, err := newFactory(c, p)
		if err != nil {
			return err
		}
		addr := serveAddr
		if addr == "" {
			addr = c.ServeAddr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := &http.Server{
			Addr:              addr,
			Handler:           newRouter(f, c, logger),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Listening on http://%s\n", addr)

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

// newRouter builds the HTTP surface. Every request gets its own orchestrator.
func newRouter(f *pipeline.Factory, c *cfgpkg.Global, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/rules", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, newEngine(c).Rules())
	})
	r.Post("/runs", func(w http.ResponseWriter, req *http.Request) {
		handleRun(w, req, f, c)
	})
	return r
}

func handleRun(w http.ResponseWriter, r *http.Request, f *pipeline.Factory, c *cfgpkg.Global) {
	limit := c.MaxUploadBytes
	if limit <= 0 {
		limit = pipeline.DefaultMaxSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request exceeds %d bytes", tooBig.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form file \"file\"")
		return
	}
	defer part.Close()

	flags := runFlags{
		sheet:     r.FormValue("sheet"),
		delimiter: r.FormValue("delimiter"),
		encoding:  r.FormValue("encoding"),
		rules:     splitForm(r.FormValue("rules")),
		keyFields: splitForm(r.FormValue("keyFields")),
	}
	flags.noAI, _ = strconv.ParseBool(r.FormValue("noAI"))
	if v := r.FormValue("sheetIndex"); v != "" {
		flags.sheetIdx, _ = strconv.Atoi(v)
	}
	opt, err := flags.options(c)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := f.Start(r.Context(), pipeline.File{
		Name:     header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Content:  part,
	}, opt)
	writeJSON(w, statusFor(res), res)
}

// statusFor maps a run result to an HTTP status.
func statusFor(res *pipeline.Result) int {
	if res.Success {
		return http.StatusOK
	}
	var (
		ve *pipeline.ValidationError
		pe *pipeline.ParseError
	)
	switch {
	case errors.Is(res.Err, pipeline.ErrRunInProgress):
		return http.StatusConflict
	case errors.As(res.Err, &ve), errors.As(res.Err, &pe):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func splitForm(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config serve_addr)")
	serveCmd.Flags().StringVar(&serveProvider, "provider", "", "insight provider: openrouter | ollama | none (default from config)")
	serveCmd.Flags().StringVarP(&serveModel, "model", "m", "", "model name (default from config)")
}
