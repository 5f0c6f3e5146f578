package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/1ureka/rtchat/internal/util"
)

const (
	shutdownTimeout = 5 * time.Second

	defaultQueueSize = 32
	defaultMaxRooms  = 1024
	defaultRoomTTL   = 10 * time.Minute
)

// Options configures a relay Server.
type Options struct {
	QueueSize    int           // frames held for a peer that has not joined yet
	MaxRooms     int           // open rooms at once; POST /rooms answers 503 beyond it
	RoomTTL      time.Duration // lifetime of a room nobody is in
	AllowOrigins []string      // CORS origins; "*" allows any
	Debug        bool
}

// Server exposes a Hub over HTTP:
//
//	GET  /healthz
//	POST /rooms            -> {"room": "<uuid>"}
//	GET  /rooms/:room      -> {"room": "<uuid>", "peers": n}
//	GET  /rooms/:room/ws   (WebSocket)
type Server struct {
	hub      *Hub
	roomTTL  time.Duration
	router   *gin.Engine
	upgrader websocket.Upgrader
}

// NewServer builds the relay router.
func NewServer(opts Options) *Server {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.MaxRooms <= 0 {
		opts.MaxRooms = defaultMaxRooms
	}
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = defaultRoomTTL
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		hub:     NewHub(opts.QueueSize, opts.MaxRooms),
		roomTTL: opts.RoomTTL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())
	router.Use(cors.New(corsConfig(opts.AllowOrigins)))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rooms := router.Group("/rooms")
	rooms.POST("", s.createRoom)
	rooms.GET("/:room", s.getRoom)
	rooms.GET("/:room/ws", s.joinRoom)

	s.router = router
	return s
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowHeaders = []string{"Content-Type", "Origin", "Accept"}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	return config
}

// requestLogger logs each request at debug level through the shared logger.
func requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		util.LogDebug("%s %s -> %d (%s)",
			ctx.Request.Method, ctx.Request.URL.Path, ctx.Writer.Status(), time.Since(start).Round(time.Microsecond))
	}
}

// Handler returns the HTTP handler, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Hub returns the room registry.
func (s *Server) Hub() *Hub { return s.hub }

// Run serves on addr until ctx is cancelled. Unused rooms are swept while it
// runs.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router}

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.janitor(janitorCtx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	util.LogInfo("relay listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// janitor removes rooms nobody joined within the room TTL.
func (s *Server) janitor(ctx context.Context) {
	interval := s.roomTTL / 2
	if interval <= 0 {
		interval = s.roomTTL
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.hub.Sweep(now, s.roomTTL)
		}
	}
}

func (s *Server) createRoom(ctx *gin.Context) {
	id, err := s.hub.CreateRoom()
	if err != nil {
		util.LogWarning("refusing new room: %v", err)
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"room": id.String()})
}

func (s *Server) getRoom(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("room"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	peers, err := s.hub.Peers(id)
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"room": id.String(), "peers": peers})
}

func (s *Server) joinRoom(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("room"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	if _, err := s.hub.Peers(id); err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	conn, err := s.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		util.LogDebug("room %s: upgrade failed: %v", id, err)
		return
	}

	m, err := s.hub.join(id, conn)
	if err != nil {
		code := websocket.ClosePolicyViolation
		if errors.Is(err, ErrRoomNotFound) {
			code = websocket.CloseGoingAway
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, err.Error()),
			time.Now().Add(time.Second))
		_ = conn.Close()
		util.LogWarning("room %s: refused peer: %v", id, err)
		return
	}

	defer func() {
		s.hub.leave(id, m)
		_ = conn.Close()
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.hub.forward(id, m, data)
	}
}
