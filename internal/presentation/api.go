package presentation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Caia-Tech/smartmeta/internal/llm"
	"github.com/Caia-Tech/smartmeta/internal/processing"
	"github.com/Caia-Tech/smartmeta/internal/storage"
	"github.com/Caia-Tech/smartmeta/pkg/document"
	"github.com/Caia-Tech/smartmeta/pkg/extractor"
	"github.com/Caia-Tech/smartmeta/pkg/metadata"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// UploadTypes are the extensions offered by the upload form.
var UploadTypes = []string{"pdf", "docx", "txt", "png", "jpg", "jpeg"}

// UI serves the server-rendered web interface
type UI struct {
	docs          Documents
	renderer      *Renderer
	maxUploadSize int64
}

// NewUI creates the web interface. maxUploadSize limits request bodies.
func NewUI(docs Documents, renderer *Renderer, maxUploadSize int64) *UI {
	return &UI{
		docs:          docs,
		renderer:      renderer,
		maxUploadSize: maxUploadSize,
	}
}

// Handler returns the routed handler with middleware applied
func (ui *UI) Handler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/", ui.index).Methods("GET")
	router.HandleFunc("/upload", ui.upload).Methods("POST")
	router.HandleFunc("/documents/{id}", ui.showDocument).Methods("GET")
	router.HandleFunc("/documents/{id}/generate", ui.generate).Methods("POST")
	router.HandleFunc("/documents/{id}/result", ui.showResult).Methods("GET")
	router.HandleFunc("/documents/{id}/download", ui.download).Methods("GET")

	return ui.loggingMiddleware(router)
}

func (ui *UI) index(w http.ResponseWriter, r *http.Request) {
	ui.render(w, http.StatusOK, "index", &ViewData{})
}

func (ui *UI) upload(w http.ResponseWriter, r *http.Request) {
	if ui.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, ui.maxUploadSize)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			ui.render(w, http.StatusRequestEntityTooLarge, "index", &ViewData{
				Error: fmt.Sprintf("Error processing file: file exceeds %d bytes", maxErr.Limit),
			})
			return
		}
		ui.render(w, http.StatusBadRequest, "index", &ViewData{Error: "Please choose a file to upload."})
		return
	}
	defer file.Close()

	if !ui.docs.Accepts(header.Filename) {
		ui.render(w, http.StatusUnsupportedMediaType, "index", &ViewData{
			Error: "Unsupported file type. Supported types: " + strings.Join(UploadTypes, ", "),
		})
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		ui.render(w, http.StatusBadRequest, "index", &ViewData{Error: "Error processing file: " + err.Error()})
		return
	}

	doc, err := ui.docs.Upload(r.Context(), header.Filename, content)
	if err != nil {
		ui.render(w, statusFor(err), "index", &ViewData{Error: "Error processing file: " + userMessage(err)})
		return
	}

	http.Redirect(w, r, "/documents/"+doc.ID, http.StatusSeeOther)
}

func (ui *UI) showDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := ui.docs.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		ui.render(w, statusFor(err), "index", &ViewData{Error: userMessage(err)})
		return
	}
	ui.render(w, http.StatusOK, "document", &ViewData{
		Title:    doc.Source.Filename + " - SmartMeta",
		Document: ui.renderer.DocumentView(doc),
	})
}

func (ui *UI) generate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, err := ui.docs.Generate(r.Context(), id)
	if err != nil {
		var parseErr *metadata.ParseError
		switch {
		case errors.As(err, &parseErr) && doc != nil:
			view, _ := ui.renderer.ResultView(doc)
			ui.render(w, http.StatusUnprocessableEntity, "result", &ViewData{
				Error:  "Failed to parse JSON response: " + parseErr.Err.Error(),
				Result: view,
			})
		case doc != nil:
			ui.render(w, statusFor(err), "document", &ViewData{
				Error:    userMessage(err),
				Document: ui.renderer.DocumentView(doc),
			})
		default:
			ui.render(w, statusFor(err), "index", &ViewData{Error: userMessage(err)})
		}
		return
	}

	ui.renderResult(w, doc)
}

func (ui *UI) showResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	doc, err := ui.docs.Get(r.Context(), id)
	if err != nil {
		ui.render(w, statusFor(err), "index", &ViewData{Error: userMessage(err)})
		return
	}
	if doc.Generated == nil {
		http.Redirect(w, r, "/documents/"+id, http.StatusSeeOther)
		return
	}
	ui.renderResult(w, doc)
}

func (ui *UI) renderResult(w http.ResponseWriter, doc *document.Document) {
	view, err := ui.renderer.ResultView(doc)
	if err != nil {
		ui.render(w, http.StatusInternalServerError, "index", &ViewData{Error: "Error processing metadata: " + err.Error()})
		return
	}
	ui.render(w, http.StatusOK, "result", &ViewData{
		Title:  doc.Source.Filename + " metadata - SmartMeta",
		Result: view,
	})
}

func (ui *UI) download(w http.ResponseWriter, r *http.Request) {
	filename, data, err := ui.docs.Export(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, userMessage(err), statusFor(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

// render buffers the page so a template error can still become a 500.
func (ui *UI) render(w http.ResponseWriter, status int, page string, data *ViewData) {
	data.Accept = "." + strings.Join(UploadTypes, ",.")

	var buf bytes.Buffer
	if err := ui.renderer.Render(&buf, page, data); err != nil {
		log.Error().Err(err).Str("page", page).Msg("Failed to render page")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func statusFor(err error) int {
	var (
		procErr *extractor.ProcessingError
		apiErr  *llm.APIError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, processing.ErrNoMetadata):
		return http.StatusNotFound
	case errors.Is(err, processing.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, processing.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, processing.ErrEmptyFile):
		return http.StatusBadRequest
	case errors.Is(err, processing.ErrInsufficientText), errors.As(err, &procErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, llm.ErrMissingAPIKey):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr), errors.Is(err, llm.ErrEmptyResponse), errors.Is(err, llm.ErrProviderUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// userMessage phrases err for the page banner without leaking provider
// response bodies.
func userMessage(err error) string {
	var apiErr *llm.APIError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "Document not found. It may have expired; please upload it again."
	case errors.Is(err, processing.ErrInsufficientText):
		return "Insufficient text content for metadata generation."
	case errors.Is(err, llm.ErrMissingAPIKey):
		return "Failed to generate metadata: no model API key is configured."
	case errors.As(err, &apiErr):
		return "Failed to generate metadata: " + apiErr.Public()
	case errors.Is(err, llm.ErrProviderUnavailable):
		return "Failed to generate metadata: the model provider could not be reached."
	case errors.Is(err, llm.ErrEmptyResponse):
		return "Failed to generate metadata: the model returned an empty response."
	case errors.Is(err, processing.ErrNoMetadata):
		return "No metadata has been generated for this document yet."
	}
	return err.Error()
}

func (ui *UI) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Msg("UI request")
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
