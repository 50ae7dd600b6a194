package smtp

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"sync"
	"time"

	"github.com/vhvplatform/go-notification-orchestrator/internal/metrics"
)

// SMTPConfig holds SMTP connection settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool // implicit TLS (port 465); otherwise STARTTLS is used when offered
	Timeout  time.Duration
}

// SMTPPool keeps a bounded set of idle SMTP connections. Connections are
// dialled on demand so the service can start while the relay is down.
type SMTPPool struct {
	connections chan *smtp.Client
	config      SMTPConfig
	size        int
	mu          sync.Mutex
	closed      bool
}

// NewSMTPPool creates a new SMTP connection pool
func NewSMTPPool(config SMTPConfig, size int) *SMTPPool {
	if size < 1 {
		size = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &SMTPPool{
		connections: make(chan *smtp.Client, size),
		config:      config,
		size:        size,
	}
}

func (p *SMTPPool) createConnection() (*smtp.Client, error) {
	addr := net.JoinHostPort(p.config.Host, fmt.Sprint(p.config.Port))
	tlsConfig := &tls.Config{
		ServerName: p.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	dialer := &net.Dialer{Timeout: p.config.Timeout}
	var conn net.Conn
	var err error
	if p.config.UseTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial SMTP: %w", err)
	}
	// bounds the greeting and handshake
	_ = conn.SetDeadline(time.Now().Add(p.config.Timeout))

	client, err := smtp.NewClient(conn, p.config.Host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if !p.config.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return nil, fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if p.config.Username != "" && p.config.Password != "" {
		auth := smtp.PlainAuth("", p.config.Username, p.config.Password, p.config.Host)
		if err := client.Auth(auth); err != nil {
			client.Quit()
			return nil, fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	_ = conn.SetDeadline(time.Time{})
	return client, nil
}

// Get retrieves a live connection from the pool or dials a new one
func (p *SMTPPool) Get() (*smtp.Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("connection pool is closed")
	}
	p.mu.Unlock()

	select {
	case client := <-p.connections:
		metrics.SMTPConnectionPool.Set(float64(len(p.connections)))
		if err := client.Noop(); err != nil {
			client.Close()
			return p.createConnection()
		}
		return client, nil
	default:
		return p.createConnection()
	}
}

// Put returns a healthy connection to the pool
func (p *SMTPPool) Put(client *smtp.Client) {
	if client == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		client.Quit()
		return
	}

	select {
	case p.connections <- client:
		metrics.SMTPConnectionPool.Set(float64(len(p.connections)))
	default:
		client.Quit()
	}
}

// Discard drops a connection that hit a protocol error
func (p *SMTPPool) Discard(client *smtp.Client) {
	if client != nil {
		client.Close()
	}
}

// Close closes all idle connections
func (p *SMTPPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.connections)
	p.mu.Unlock()

	for client := range p.connections {
		client.Quit()
	}
	metrics.SMTPConnectionPool.Set(0)
}

// Size returns the maximum number of idle connections
func (p *SMTPPool) Size() int {
	return p.size
}
