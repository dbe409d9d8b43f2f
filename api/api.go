// Package api wires the gin server: sessions, middleware and routes.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/gzip"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/vquang/leaflib/api/cache"
	"github.com/vquang/leaflib/api/handler"
	"github.com/vquang/leaflib/config"
	"github.com/vquang/leaflib/cover"
	"github.com/vquang/leaflib/database"
	"github.com/vquang/leaflib/ebook"
	"github.com/vquang/leaflib/importer"
	"github.com/vquang/leaflib/web"
)

type Server struct {
	cfg       *config.Config
	ginEngine *gin.Engine
	db        *database.Client
	handler   *handler.Handler
}

func New(
	cfg *config.Config,
	db *database.Client,
	covers *cover.Processor,
	tool *ebook.Tool,
	imp *importer.Importer,
) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	tmpl, err := web.Templates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	engine.SetHTMLTemplate(tmpl)

	s := &Server{
		cfg:       cfg,
		ginEngine: engine,
		db:        db,
		handler:   handler.New(cfg, db, covers, tool, imp, cache.NewManager()),
	}
	s.setupSession()
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupSession() {
	store := cookie.NewStore([]byte(s.cfg.SessionKey))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.ginEngine.Use(sessions.Sessions("leaflib_session", store))
}

func (s *Server) setupRoutes() {
	h := s.handler

	static, err := web.Static()
	if err != nil {
		log.Fatal("failed to load embedded static assets", "error", err)
	}
	s.ginEngine.StaticFS("/static", http.FS(static))

	s.ginEngine.Use(s.loadUser())

	s.ginEngine.GET("/login", h.LoginPage)
	s.ginEngine.POST("/login", h.Login)
	s.ginEngine.GET("/register", h.RegisterPage)
	s.ginEngine.POST("/register", h.Register)

	protected := s.ginEngine.Group("/")
	protected.Use(s.requireAuth())
	{
		protected.GET("/", h.Index)
		protected.GET("/logout", h.Logout)
		protected.GET("/change_password", h.ChangePasswordPage)
		protected.POST("/change_password", h.ChangePassword)

		protected.GET("/favorites", h.Favorites)
		protected.GET("/bookmarks", h.Bookmarks)
		protected.GET("/lists/:id", h.ListPage)

		protected.GET("/book/:id", h.Detail)
		protected.GET("/edit/:id", h.EditPage)
		protected.POST("/edit/:id", h.Edit)
		protected.POST("/upload", h.Upload)
		protected.POST("/delete/:id", h.Delete)
		protected.POST("/delete_format/:id", h.DeleteFormat)
		protected.POST("/convert/:id", h.Convert)

		protected.GET("/read/:id", h.Download)
		protected.GET("/serve_book_file/:id", h.ServeBookFile)
		protected.GET("/read_online/:id", h.ReadOnline)
		protected.GET("/cover/:id", h.Cover)
		protected.GET("/cover/:id/original", h.CoverOriginal)

		protected.GET("/import_calibre", h.ImportCalibrePage)
		protected.POST("/process_calibre_import", h.ImportCalibre)

		protected.POST("/toggle_favorite/:id", h.ToggleFavorite)
		protected.POST("/toggle_bookmark/:id", h.ToggleBookmark)
		protected.POST("/rate_book/:id", h.Rate)
		protected.POST("/save_settings/:id", h.SaveReaderSettings)

		protected.POST("/lists/create", h.CreateList)
		protected.POST("/api/lists/toggle_book", h.ToggleBookInList)
		protected.GET("/api/book/:id/lists", h.BookLists)
	}

	admin := s.ginEngine.Group("/")
	admin.Use(s.requireAuth(), s.requireAdmin())
	{
		admin.GET("/library/:user_id", h.UserLibrary)
		admin.GET("/manage_users", h.ManageUsers)
		admin.POST("/toggle_admin/:id", h.ToggleAdmin)
		admin.POST("/delete_user/:id", h.DeleteUser)
		admin.GET("/guest_permissions", h.GuestPermissionsPage)
		admin.POST("/guest_permissions", h.SaveGuestPermissions)
		admin.GET("/settings", h.SettingsPage)
		admin.POST("/settings", h.SaveSettings)
		admin.GET("/api/browse", h.Browse)
	}
}

// Handler exposes the routed engine, mainly for tests.
func (s *Server) Handler() http.Handler { return s.ginEngine }

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen(),
		Handler:           s.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
