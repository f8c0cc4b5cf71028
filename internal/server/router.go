package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/A-kirami/webgal-craft/pkg/config"
	"github.com/A-kirami/webgal-craft/pkg/middleware"
)

// RouterOptions configures the preview routes.
type RouterOptions struct {
	// SyncPath is the WebSocket endpoint, e.g. /api/webgalsync.
	SyncPath string
	// ContentPrefix is the mount point for sites, e.g. /game.
	ContentPrefix string
	CORS          config.CORSConfig
}

// route is one entry in the preview route table.
type route struct {
	method  string
	pattern string
	handler gin.HandlerFunc
}

// NewRouter builds the preview router over state.
func NewRouter(state *AppState, opts RouterOptions, logger *zap.Logger) *gin.Engine {
	router := NewEngine(opts.CORS, logger)
	for _, rt := range routes(state, opts, logger) {
		router.Handle(rt.method, rt.pattern, rt.handler)
	}
	return router
}

// NewEngine creates a gin engine with the common middleware.
func NewEngine(corsCfg config.CORSConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:  corsCfg.AllowedOrigins,
		AllowMethods:  corsCfg.AllowedMethods,
		AllowHeaders:  corsCfg.AllowedHeaders,
		ExposeHeaders: corsCfg.ExposedHeaders,
		MaxAge:        time.Duration(corsCfg.MaxAge) * time.Second,
	}))
	return router
}

func routes(state *AppState, opts RouterOptions, logger *zap.Logger) []route {
	content := contentHandler(state, opts.ContentPrefix, logger)
	status := statusHandler(state)

	return []route{
		{http.MethodGet, "/health", status},
		{http.MethodGet, "/status", status},
		{http.MethodGet, opts.SyncPath, syncHandler(state)},
		{http.MethodGet, opts.ContentPrefix + "/*path", content},
		{http.MethodHead, opts.ContentPrefix + "/*path", content},
	}
}

func statusHandler(state *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "webgal-preview",
			"sites":   state.Sites.Len(),
			"clients": state.Hub.Count(),
		})
	}
}

// syncHandler upgrades to WebSocket. A plain GET is answered with 400 by the
// upgrader.
func syncHandler(state *AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		state.Hub.HandleConnection(c.Writer, c.Request, state.Inbound)
	}
}

func contentHandler(state *AppState, prefix string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, subpath, redirect := splitContentPath(c.Param("path"))

		// The bare id is redirected whether or not it is registered.
		if redirect {
			location := prefix + "/" + url.PathEscape(id) + "/"
			if q := c.Request.URL.RawQuery; q != "" {
				location += "?" + q
			}
			c.Redirect(http.StatusMovedPermanently, location)
			state.Metrics.ContentRequest(http.StatusMovedPermanently)
			return
		}

		s, err := state.Sites.Lookup(id)
		if err != nil {
			c.String(http.StatusNotFound, "site not found")
			state.Metrics.ContentRequest(http.StatusNotFound)
			return
		}

		target, err := contentURL(subpath, c.Request.URL.RawQuery)
		if err != nil {
			logger.Error("Failed to build content URL",
				zap.String("site_id", id), zap.String("subpath", subpath), zap.Error(err))
			c.String(http.StatusInternalServerError, "internal error")
			state.Metrics.ContentRequest(http.StatusInternalServerError)
			return
		}

		req := c.Request.Clone(c.Request.Context())
		req.URL = target
		req.RequestURI = target.RequestURI()
		s.ServeHTTP(c.Writer, req)
		state.Metrics.ContentRequest(c.Writer.Status())
	}
}

// splitContentPath splits the wildcard part of a content request into the
// site id and the path inside the site. redirect is set for a bare "/{id}"
// which must gain a trailing slash so relative links resolve inside the site.
func splitContentPath(p string) (id, subpath string, redirect bool) {
	p = strings.TrimPrefix(p, "/")
	id, rest, found := strings.Cut(p, "/")
	if !found {
		return id, "", id != ""
	}
	return id, "/" + rest, false
}

// contentURL rebuilds a request URL for a site's file server from a decoded
// subpath, escaping every segment again.
func contentURL(subpath, rawQuery string) (*url.URL, error) {
	segments := strings.Split(strings.TrimPrefix(subpath, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	u, err := url.Parse("/" + strings.Join(segments, "/"))
	if err != nil {
		return nil, err
	}
	u.RawQuery = rawQuery
	return u, nil
}
