package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"intizar/internal/apperr"
	"intizar/internal/auth"
	"intizar/internal/catalog"
	"intizar/internal/models"
	"intizar/internal/service/ai"
	"intizar/internal/storage"
	"intizar/internal/telemetry"
)

const (
	MsgInternal         = "Internal server error"
	MsgInvalidAction    = "Invalid action"
	MsgNoAction         = "No action specified"
	MsgNoInput          = "No input provided"
	MsgCredentials      = "Username and password are required"
	MsgInvalidLogin     = "Invalid username or password."
	MsgLoginUnavailable = "Login service unavailable."
	MsgLoggedOut        = "Logged out successfully."
)

const paramsKey = "params"

// Catalog is the document side of the API.
type Catalog interface {
	Upload(ctx context.Context, req catalog.UploadRequest) (catalog.Result, error)
	GeneratePdf(ctx context.Context, req catalog.GenerateRequest) (catalog.Result, error)
	ListAll(ctx context.Context) ([]models.Document, error)
	Configured() (files, rows bool)
}

// Pinger reports whether a backing service answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Assistant answers scoped questions.
type Assistant interface {
	Ask(ctx context.Context, caller, question string) (ai.Answer, error)
	Configured() bool
}

type actionHandler func(c *gin.Context, p requestParams)

// Handler serves every action of the library backend on a single endpoint.
type Handler struct {
	auth      *auth.Service
	catalog   Catalog
	assistant Assistant

	metrics  *telemetry.Metrics
	gatherer prometheus.Gatherer
	filesDir string
	links    storage.Presigner
	cache    Pinger
	maxBody  int64
	handlers map[Action]actionHandler
}

type HandlerOption func(*Handler)

// WithMetrics counts requests and serves gatherer on /metrics.
func WithMetrics(m *telemetry.Metrics, gatherer prometheus.Gatherer) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
		h.gatherer = gatherer
	}
}

// WithFilesDir serves a local file store read-only under /files.
func WithFilesDir(dir string) HandlerOption {
	return func(h *Handler) { h.filesDir = dir }
}

// WithFileLinks redirects /files downloads to links minted by p.
func WithFileLinks(p storage.Presigner) HandlerOption {
	return func(h *Handler) { h.links = p }
}

// WithCachePing adds a "cache" flag to the health report.
func WithCachePing(p Pinger) HandlerOption {
	return func(h *Handler) { h.cache = p }
}

// WithMaxUploadBytes sizes the request body limit for the given decoded
// file size.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n*4/3 + 1<<20
		}
	}
}

// NewHandler constructs a Handler instance.
func NewHandler(authService *auth.Service, catalogService Catalog, assistant Assistant, opts ...HandlerOption) *Handler {
	h := &Handler{
		auth:      authService,
		catalog:   catalogService,
		assistant: assistant,
		maxBody:   catalog.DefaultMaxUploadBytes*4/3 + 1<<20,
	}
	h.handlers = map[Action]actionHandler{
		ActionHealth:       h.health,
		ActionGetDocuments: h.getDocuments,
		ActionLogout:       h.logout,
		ActionLogin:        h.login,
		ActionUpload:       h.upload,
		ActionGeneratePdf:  h.generatePdf,
		ActionAI:           h.askAI,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(Recovery(), RequestID(), AccessLog(h.metrics), CORS())
	for _, path := range []string{"/", "/exec"} {
		router.GET(path, h.resolveAction(), h.authorize(), h.dispatch)
		router.POST(path, h.resolveAction(), h.authorize(), h.dispatch)
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if h.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
	}
	switch {
	case h.filesDir != "":
		router.StaticFS(storage.FilesRoute, gin.Dir(h.filesDir, false))
	case h.links != nil:
		router.GET(storage.FilesRoute+"/*key", h.redirectFile)
	}
}

// redirectFile sends the client to a fresh download link for the stored key.
func (h *Handler) redirectFile(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	link, err := h.links.PresignGet(c.Request.Context(), key)
	if errors.Is(err, storage.ErrInvalidKey) {
		c.Status(http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("presign file link failed", "request_id", c.GetString(requestIDKey), "key", key, "error", err)
		c.Status(http.StatusBadGateway)
		return
	}
	c.Redirect(http.StatusFound, link)
}

// resolveAction parses the parameters and the action, rejecting unknown
// actions and wrong methods before any handler runs.
func (h *Handler) resolveAction() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseParams(c, h.maxBody)
		if err != nil {
			h.abort(c, apperr.Validation(err.Error()))
			return
		}
		name := p.get("action")
		action, ok := ParseAction(name)
		if !ok {
			h.rejectAction(c, name)
			return
		}
		route := actionRoutes[action]
		c.Set(actionKey, route.name)
		if c.Request.Method != route.method {
			h.abort(c, apperr.Validation(route.name+" requires "+route.method))
			return
		}
		if route.jsonBody && !p.isJSON {
			h.abort(c, apperr.Validation(route.name+" requires a JSON body"))
			return
		}
		c.Set(auth.ParamTokenKey, p.get("token"))
		c.Set(paramsKey, p)
		c.Next()
	}
}

func (h *Handler) rejectAction(c *gin.Context, name string) {
	c.Set(outcomeKey, string(apperr.KindValidation))
	if c.Request.Method == http.MethodGet {
		c.AbortWithStatusJSON(http.StatusOK, gin.H{
			"success":          false,
			"error":            MsgInvalidAction,
			"availableActions": actionsFor(http.MethodGet),
		})
		return
	}
	msg := MsgNoAction
	if name != "" {
		msg = "Unknown action: " + name
	}
	c.AbortWithStatusJSON(http.StatusOK, gin.H{"success": false, "error": msg})
}

// authorize runs the session check for actions that need an admin.
func (h *Handler) authorize() gin.HandlerFunc {
	requireSession := h.auth.RequireSession()
	return func(c *gin.Context) {
		action, _ := ParseAction(c.GetString(actionKey))
		if !actionRoutes[action].auth {
			c.Next()
			return
		}
		requireSession(c)
		if c.IsAborted() {
			c.Set(outcomeKey, string(apperr.KindUnauthorized))
		}
	}
}

func (h *Handler) dispatch(c *gin.Context) {
	action, _ := ParseAction(c.GetString(actionKey))
	handle, ok := h.handlers[action]
	if !ok {
		h.fail(c, apperr.Internal(errors.New("no handler for "+action.String())), MsgInternal)
		return
	}
	p, _ := c.Get(paramsKey)
	handle(c, p.(requestParams))
}

func (h *Handler) health(c *gin.Context, _ requestParams) {
	files, rows := h.catalog.Configured()
	services := gin.H{
		"drive":  files,
		"sheets": rows,
		"ai":     h.assistant.Configured(),
	}
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		err := h.cache.Ping(ctx)
		cancel()
		if err != nil {
			slog.Warn("cache ping failed", "request_id", c.GetString(requestIDKey), "error", err)
		}
		services["cache"] = err == nil
	}
	h.ok(c, gin.H{
		"status":    "online",
		"timestamp": timestamp(),
		"services":  services,
	})
}

func (h *Handler) getDocuments(c *gin.Context, _ requestParams) {
	docs, err := h.catalog.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err, catalog.MsgListFailed)
		return
	}
	h.ok(c, gin.H{"documents": docs, "count": len(docs)})
}

func (h *Handler) logout(c *gin.Context, _ requestParams) {
	token := h.auth.RequestToken(c)
	if err := h.auth.DestroySession(c.Request.Context(), token); err != nil {
		// the token expires on its own; logging out still succeeds
		slog.Warn("destroy session failed", "request_id", c.GetString(requestIDKey), "error", err)
	}
	h.ok(c, gin.H{"message": MsgLoggedOut})
}

func (h *Handler) login(c *gin.Context, p requestParams) {
	username, password := p.get("username"), p.values["password"]
	if username == "" || password == "" {
		h.fail(c, apperr.Validation(MsgCredentials), "")
		return
	}
	token, expiresIn, err := h.auth.Login(c.Request.Context(), username, password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.fail(c, apperr.Unauthorized(MsgInvalidLogin), "")
			return
		}
		h.fail(c, apperr.Upstream(MsgLoginUnavailable, err), MsgLoginUnavailable)
		return
	}
	h.ok(c, gin.H{"token": token, "expiresIn": expiresIn})
}

type uploadPayload struct {
	FileName   string `json:"fileName"`
	MimeType   string `json:"mimeType"`
	FileBase64 string `json:"fileBase64"`
	Metadata   struct {
		Title  string `json:"title"`
		Author string `json:"author"`
	} `json:"metadata"`
}

func (h *Handler) upload(c *gin.Context, p requestParams) {
	var req uploadPayload
	if err := p.decodeBody(&req); err != nil {
		h.fail(c, apperr.Validation(MsgInvalidJSON), "")
		return
	}
	res, err := h.catalog.Upload(c.Request.Context(), catalog.UploadRequest{
		FileName:   req.FileName,
		MimeType:   req.MimeType,
		FileBase64: req.FileBase64,
		Title:      req.Metadata.Title,
		Author:     req.Metadata.Author,
	})
	if err != nil {
		h.fail(c, err, MsgInternal)
		return
	}
	h.ok(c, resultPayload(res))
}

type generatePayload struct {
	FormData struct {
		Title  string `json:"title"`
		Author string `json:"author"`
		Body   string `json:"body"`
	} `json:"formData"`
}

func (h *Handler) generatePdf(c *gin.Context, p requestParams) {
	var req generatePayload
	if err := p.decodeBody(&req); err != nil {
		h.fail(c, apperr.Validation(MsgInvalidJSON), "")
		return
	}
	res, err := h.catalog.GeneratePdf(c.Request.Context(), catalog.GenerateRequest{
		Title:  req.FormData.Title,
		Author: req.FormData.Author,
		Body:   req.FormData.Body,
	})
	if err != nil {
		h.fail(c, err, MsgInternal)
		return
	}
	h.ok(c, resultPayload(res))
}

func (h *Handler) askAI(c *gin.Context, p requestParams) {
	input := p.get("input", "question", "q")
	if input == "" {
		h.fail(c, apperr.Validation(MsgNoInput), "")
		return
	}
	answer, err := h.assistant.Ask(c.Request.Context(), c.ClientIP(), input)
	if err != nil {
		h.fail(c, err, ai.MsgUnavailable)
		return
	}
	payload := gin.H{"response": answer.Text}
	if answer.InScope {
		payload["timestamp"] = timestamp()
	}
	h.ok(c, payload)
}

func resultPayload(res catalog.Result) gin.H {
	return gin.H{
		"fileId":   res.File.Ref,
		"fileUrl":  res.File.URL,
		"fileName": res.File.Name,
		"message":  res.Message,
		"document": res.Document,
	}
}

func (h *Handler) ok(c *gin.Context, payload gin.H) {
	payload["success"] = true
	c.Set(outcomeKey, "ok")
	c.JSON(http.StatusOK, payload)
}

// fail writes the failure envelope. Client-facing kinds keep their message;
// everything else is logged and replaced by fallback.
func (h *Handler) fail(c *gin.Context, err error, fallback string) {
	kind := apperr.KindOf(err)
	msg := apperr.Message(err, fallback)
	if msg == "" {
		msg = MsgInternal
	}
	switch kind {
	case apperr.KindUpstream, apperr.KindInternal:
		slog.Error("action failed",
			"request_id", c.GetString(requestIDKey),
			"action", c.GetString(actionKey),
			"kind", kind,
			"error", err,
		)
	}
	c.Set(outcomeKey, string(kind))
	c.JSON(http.StatusOK, gin.H{"success": false, "error": msg})
}

func (h *Handler) abort(c *gin.Context, err error) {
	h.fail(c, err, MsgInternal)
	c.Abort()
}

func timestamp() string {
	return time.Now().UTC().Format(models.DateLayout)
}
