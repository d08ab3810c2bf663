package handlers

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/age-gender-ui/internal/display"
	"github.com/example/age-gender-ui/internal/imageprocessor"
	"github.com/example/age-gender-ui/internal/logging"
	"github.com/example/age-gender-ui/internal/sample"
	"github.com/example/age-gender-ui/internal/session"
	"github.com/example/age-gender-ui/internal/upload"
)

// SessionCookie carries the page session id.
const SessionCookie = "agui_session"

// DefaultMaxUploadSize caps a selected file when Dependencies leaves it unset.
const DefaultMaxUploadSize = 10 << 20

// multipartOverhead is the slack allowed on top of the file for boundaries and headers.
const multipartOverhead = 64 << 10

const sessionKey = "page_session"

//go:embed templates/*.html
var templatesFS embed.FS

var pageTemplate = template.Must(template.New("").ParseFS(templatesFS, "templates/*.html"))

// Dependencies are the collaborators the routes need.
type Dependencies struct {
	Sessions      *session.Registry
	Feeder        *sample.Feeder
	Store         display.Store
	Static        http.FileSystem
	MaxUploadSize int64
	Logger        *zap.Logger
}

type handler struct {
	Dependencies
	logger *zap.Logger
}

// RegisterRoutes wires the page, its actions and the display handles to the Gin router.
func RegisterRoutes(router *gin.Engine, deps Dependencies) {
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = DefaultMaxUploadSize
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handler{Dependencies: deps, logger: deps.Logger.Named("handlers")}

	router.SetHTMLTemplate(pageTemplate)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Static != nil {
		for _, entry := range deps.Feeder.Entries() {
			router.StaticFileFS(entry.Ref, strings.TrimPrefix(entry.Ref, "/"), deps.Static)
		}
	}

	router.GET("/results/:handle", h.serveResult(false))
	router.GET("/results/:handle/download", h.serveResult(true))

	page := router.Group("/", h.withSession)
	page.GET("/", h.renderPage)
	page.GET("/state", h.renderState)
	page.POST("/select", h.selectFile)
	page.POST("/upload", h.submit)
	page.POST("/samples/:index", h.submitSample)
	page.POST("/theme", h.toggleTheme)
	page.POST("/about", h.toggleAbout)
	page.POST("/about/close", h.closeAbout)
}

func (h *handler) withSession(c *gin.Context) {
	id, _ := c.Cookie(SessionCookie)
	s, created := h.Sessions.Resolve(id)
	if created {
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(SessionCookie, s.ID, 0, "/", "", false, true)
	}
	c.Set(sessionKey, s)
	c.Next()
}

func pageSession(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

func (h *handler) selectFile(c *gin.Context) {
	s := pageSession(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadSize+multipartOverhead)

	header, err := c.FormFile(imageprocessor.FormField)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		s.Upload.SelectFile(c.Request.Context(), nil)
		c.Redirect(http.StatusSeeOther, "/")
		return
	case err != nil:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form with a file field is required"})
		return
	}

	if header.Size > h.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit"})
		return
	}

	src, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	s.Upload.SelectFile(c.Request.Context(), &upload.File{Name: header.Filename, Data: data})
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) submit(c *gin.Context) {
	s := pageSession(c)
	if err := s.Upload.Submit(c.Request.Context(), nil); err != nil {
		h.logSettled(s.ID, "handlers.submit", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) submitSample(c *gin.Context) {
	s := pageSession(c)
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sample index must be a number"})
		return
	}

	err = h.Feeder.Select(c.Request.Context(), s.Upload, index)
	if errors.Is(err, sample.ErrUnknownSample) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.logSettled(s.ID, "handlers.submit_sample", err)
	}
	c.Redirect(http.StatusSeeOther, "/")
}

// logSettled records why an action ended in an error state. The user only
// ever sees the controller's message.
func (h *handler) logSettled(sessionID, operation string, err error) {
	log := logging.WithOperation(logging.WithSession(h.logger, sessionID), operation, "")
	if errors.Is(err, upload.ErrSuperseded) {
		log.Debug("response superseded by a newer action")
		return
	}
	log.Info("action settled with error", zap.Error(err))
}

func (h *handler) toggleTheme(c *gin.Context) {
	s := pageSession(c)
	s.Theme.Toggle()
	s.Effects.Spawn("theme-toggle")
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) toggleAbout(c *gin.Context) {
	pageSession(c).About.Toggle()
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) closeAbout(c *gin.Context) {
	pageSession(c).About.Close()
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *handler) serveResult(download bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		obj, err := h.Store.Get(c.Request.Context(), display.Handle(c.Param("handle")))
		if errors.Is(err, display.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
			return
		}
		if err != nil {
			h.logger.Error("failed to resolve display handle", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load result"})
			return
		}

		c.Header("Cache-Control", "no-store")
		if download {
			c.Header("Content-Disposition", `attachment; filename="`+display.DownloadName+`"`)
		}
		c.Data(http.StatusOK, display.ContentType, obj.Data)
	}
}

type resultView struct {
	ImageURL     string    `json:"image_url"`
	DownloadURL  string    `json:"download_url"`
	DownloadName string    `json:"download_name"`
	Size         int       `json:"size"`
	ReceivedAt   time.Time `json:"received_at"`
}

type stateView struct {
	State     string      `json:"state"`
	FileName  string      `json:"file_name,omitempty"`
	FileSize  int         `json:"file_size,omitempty"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Result    *resultView `json:"result,omitempty"`
	Theme     string      `json:"theme"`
	AboutOpen bool        `json:"about_open"`
}

func buildStateView(s *session.Session) stateView {
	snap := s.Upload.Snapshot()
	view := stateView{
		State:     snap.State.String(),
		FileName:  snap.FileName,
		FileSize:  snap.FileSize,
		Error:     snap.Message(),
		Theme:     "light",
		AboutOpen: s.About.Open(),
	}
	if snap.Err != nil {
		view.ErrorKind = snap.Err.Kind.String()
	}
	if snap.Result != nil {
		view.Result = &resultView{
			ImageURL:     snap.Result.Handle.ImageURL(),
			DownloadURL:  snap.Result.Handle.DownloadURL(),
			DownloadName: display.DownloadName,
			Size:         snap.Result.Size,
			ReceivedAt:   snap.Result.ReceivedAt,
		}
	}
	if s.Theme.Dark() {
		view.Theme = "dark"
	}
	return view
}

func (h *handler) renderState(c *gin.Context) {
	c.JSON(http.StatusOK, buildStateView(pageSession(c)))
}

func (h *handler) renderPage(c *gin.Context) {
	s := pageSession(c)
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, "index.html", gin.H{
		"View":        buildStateView(s),
		"ThemeButton": s.Theme.ButtonLabel(),
		"Ripples":     s.Effects.Active(),
		"Samples":     h.Feeder.Entries(),
		"FileField":   imageprocessor.FormField,
	})
}
