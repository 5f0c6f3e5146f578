package signaling

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/rtchat/internal/protocol"
	"github.com/1ureka/rtchat/internal/util"
)

const (
	inboxBufferSize = 64
	closeGrace      = time.Second
)

// Compile-time interface check.
var _ Port = (*WSPort)(nil)

// WSPort is a Port over one WebSocket connection, one JSON message per frame.
type WSPort struct {
	conn  *websocket.Conn
	mu    sync.Mutex // serializes writes
	inbox *inbox
}

// NewWSPort takes ownership of conn and starts its read loop.
func NewWSPort(conn *websocket.Conn) *WSPort {
	p := &WSPort{conn: conn, inbox: newInbox(inboxBufferSize)}
	go p.readLoop()
	return p
}

// Send writes msg as one text frame, guarded by a mutex.
func (p *WSPort) Send(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return p.SendRaw(ctx, string(data))
}

// SendRaw writes one line as-is.
func (p *WSPort) SendRaw(ctx context.Context, line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	deadline, _ := ctx.Deadline()
	if err := p.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (p *WSPort) Inbound() <-chan string { return p.inbox.ch }

// Close sends a normal close frame (best-effort) and closes the connection.
func (p *WSPort) Close() error {
	p.mu.Lock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	p.mu.Unlock()

	p.inbox.close()
	return p.conn.Close()
}

// readLoop forwards every text frame to the inbox until the connection fails.
func (p *WSPort) readLoop() {
	defer p.inbox.close()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				util.LogDebug("signaling read ended: %v", err)
			}
			return
		}
		if err := p.inbox.deliver(context.Background(), string(data)); err != nil {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Dialing side
// ---------------------------------------------------------------------------

// Dial connects to a peer's Server or to a relay room and returns the port.
// For a Server the URL carries the PIN, e.g.:
//
//	ws://192.168.1.10:4000/ws?pin=1234
func Dial(ctx context.Context, url string) (*WSPort, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return NewWSPort(conn), nil
}

// ---------------------------------------------------------------------------
// Listening side
// ---------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the PIN-gated WebSocket endpoint one peer exposes so the other
// can dial it directly. Only the first authenticated client is accepted.
type Server struct {
	pin      string
	listener net.Listener
	connCh   chan *websocket.Conn
}

// NewServer creates a signaling server with the given PIN for authentication.
func NewServer(pin string) *Server {
	return &Server{
		pin:    pin,
		connCh: make(chan *websocket.Conn, 1),
	}
}

// Start begins listening on addr (":0" for a random port) and returns the
// assigned port number.
func (s *Server) Start(addr string) (int, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start WS server: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return port, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	pin := r.URL.Query().Get("pin")
	if pin != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Only accept the first client.
	select {
	case s.connCh <- conn:
	default:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		_ = conn.Close()
	}
}

// WaitForPeer blocks until a client connects or ctx is cancelled.
func (s *Server) WaitForPeer(ctx context.Context) (*WSPort, error) {
	select {
	case conn := <-s.connCh:
		return NewWSPort(conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts down the listener, preventing new connections.
func (s *Server) Close() {
	if s.listener != nil {
		_ = s.listener.Close()
	}
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generate PIN: %w", err)
		}
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits), nil
}
