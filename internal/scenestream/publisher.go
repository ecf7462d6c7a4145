// Package scenestream streams rendered viewer frames to remote clients over
// gRPC. Frames are sent as google.protobuf.Struct messages so no generated
// code is needed on either side.
package scenestream

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pathview/internal/monitoring"
	"github.com/banshee-data/pathview/internal/scene"
	"google.golang.org/grpc"
)

// Config holds configuration for the stream server.
type Config struct {
	// ListenAddr is the address to listen on (e.g., "localhost:50061").
	ListenAddr string

	// MaxClients is the maximum number of concurrent streaming clients.
	MaxClients int

	// FrameStride publishes every Nth rendered frame. The viewer renders
	// at display rate; remote clients rarely need that.
	FrameStride int

	// ClientBuffer is the per-client frame queue length.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   5,
		FrameStride:  6,
		ClientBuffer: 10,
	}
}

// Publisher owns the gRPC server and fans frames out to clients.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener
	log      monitoring.Logger

	frameChan chan *scene.Frame
	clients   map[string]*clientStream
	clientsMu sync.RWMutex
	nextID    atomic.Uint64

	seen          atomic.Uint64
	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64
	sentFrames    atomic.Uint64

	running  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type clientStream struct {
	id      string
	frameCh chan *scene.Frame
}

// NewPublisher creates a Publisher. Nothing listens until Start.
func NewPublisher(cfg Config) *Publisher {
	if cfg.FrameStride < 1 {
		cfg.FrameStride = 1
	}
	if cfg.ClientBuffer < 1 {
		cfg.ClientBuffer = 1
	}
	return &Publisher{
		config:    cfg,
		log:       monitoring.Component("SceneStream"),
		frameChan: make(chan *scene.Frame, 100),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start binds the listen address, registers the scene service and starts
// serving.
func (p *Publisher) Start() error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}

	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	p.listener = lis

	const maxMsgSize = 16 * 1024 * 1024
	p.server = grpc.NewServer(grpc.MaxSendMsgSize(maxMsgSize))
	p.server.RegisterService(&ServiceDesc, &server{publisher: p})

	p.running.Store(true)

	p.wg.Add(1)
	go p.broadcastLoop()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.log.Printf("gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			p.log.Printf("gRPC server error: %v", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop ends every stream and stops the server.
func (p *Publisher) Stop() {
	if !p.running.Load() {
		return
	}
	p.running.Store(false)
	p.stopOnce.Do(func() { close(p.stopCh) })

	if p.server != nil {
		p.server.GracefulStop()
	}
	if p.listener != nil {
		p.listener.Close()
	}

	p.wg.Wait()
	p.log.Printf("gRPC server stopped")
}

// Publish offers a rendered frame to connected clients. It never blocks;
// frames are decimated by FrameStride and dropped when the queue is full.
func (p *Publisher) Publish(f *scene.Frame) {
	if f == nil || !p.running.Load() {
		return
	}
	if n := p.seen.Add(1); (n-1)%uint64(p.config.FrameStride) != 0 {
		return
	}
	if p.clientCount.Load() == 0 {
		return
	}

	select {
	case p.frameChan <- f:
		p.frameCount.Add(1)
	default:
		dropped := p.droppedFrames.Add(1)
		p.log.Debugf("dropped frame %d (total dropped: %d), channel full", f.Number, dropped)
	}
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, client := range p.clients {
				select {
				case client.frameCh <- frame:
				default:
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// addClient registers a client, or returns nil when MaxClients is reached.
func (p *Publisher) addClient() *clientStream {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return nil
	}
	client := &clientStream{
		id:      fmt.Sprintf("scene-%d-%d", time.Now().UnixNano(), p.nextID.Add(1)),
		frameCh: make(chan *scene.Frame, p.config.ClientBuffer),
	}
	p.clients[client.id] = client
	p.clientCount.Add(1)
	p.log.Printf("client connected: %s (total: %d)", client.id, len(p.clients))
	return client
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if _, ok := p.clients[id]; !ok {
		return
	}
	delete(p.clients, id)
	p.clientCount.Add(-1)
	p.log.Printf("client disconnected: %s (remaining: %d)", id, len(p.clients))
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		SentFrames:    p.sentFrames.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64 `json:"frame_count"`
	SentFrames    uint64 `json:"sent_frames"`
	DroppedFrames uint64 `json:"dropped_frames"`
	ClientCount   int32  `json:"client_count"`
	Running       bool   `json:"running"`
}
