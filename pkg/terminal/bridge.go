// Package terminal bridges a browser WebSocket to the Kubernetes exec
// subresource. Each connection dials the cluster directly with its own
// kubeconfig-derived credentials and relays bytes both ways, doing the
// v4.channel.k8s.io framing translation itself.
package terminal

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"opencode-manager/pkg/kubeconfig"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Channel bytes of the v4.channel.k8s.io subprotocol
const (
	channelStdin  = 0
	channelStdout = 1
	channelStderr = 2
	channelError  = 3
)

const execSubprotocol = "v4.channel.k8s.io"

// Bridge serves the /ws/kubernetes/exec endpoint. One goroutine pair
// per connection; sessions share nothing beyond the kubeconfig read at
// connection time.
type Bridge struct {
	logger         *slog.Logger
	kubeconfigPath func() string

	// resolve and dial are replaceable for tests
	resolve func(path string) (*kubeconfig.Credentials, error)

	upgrader         websocket.Upgrader
	handshakeTimeout time.Duration
}

// New creates a bridge that reads the kubeconfig at the path returned
// by kubeconfigPath on each connection.
func New(kubeconfigPath func() string, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		logger:         logger,
		kubeconfigPath: kubeconfigPath,
		resolve:        kubeconfig.Resolve,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The API is token-authenticated upstream of the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		handshakeTimeout: 10 * time.Second,
	}
}

// session pairs one client WebSocket with one upstream cluster
// WebSocket. Closing either side promptly closes the other.
type session struct {
	id       string
	pod      string
	client   *websocket.Conn
	upstream *websocket.Conn

	closeClientOnce   sync.Once
	closeUpstreamOnce sync.Once
}

func (s *session) closeClient() {
	s.closeClientOnce.Do(func() { s.client.Close() })
}

func (s *session) closeUpstream() {
	if s.upstream == nil {
		return
	}
	s.closeUpstreamOnce.Do(func() { s.upstream.Close() })
}

func redMessage(msg string) string {
	return "\r\n\x1b[31m" + msg + "\x1b[0m\r\n"
}

func greenMessage(msg string) string {
	return "\r\n\x1b[32m" + msg + "\x1b[0m\r\n"
}

// ServeHTTP upgrades the client connection, resolves cluster
// credentials, dials the exec subresource, and relays until either
// side closes. Every failure path ends in a terminal message and
// teardown, never a crash.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pod := r.URL.Query().Get("pod")
	namespace := r.URL.Query().Get("namespace")
	container := r.URL.Query().Get("container")

	if pod == "" || namespace == "" {
		http.Error(w, "pod and namespace query parameters are required", http.StatusBadRequest)
		return
	}

	client, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sess := &session{id: uuid.NewString(), pod: pod, client: client}
	defer sess.closeClient()

	b.logger.Info("terminal session opened", "session", sess.id, "pod", pod, "namespace", namespace)

	creds, err := b.resolve(b.kubeconfigPath())
	if err != nil {
		b.fail(sess, fmt.Sprintf("Error: %v", err))
		return
	}

	upstreamURL, err := execURL(creds.ServerURL, namespace, pod, container)
	if err != nil {
		b.fail(sess, fmt.Sprintf("Error: %v", err))
		return
	}

	upstream, err := b.dialUpstream(upstreamURL, creds)
	if err != nil {
		b.fail(sess, fmt.Sprintf("Error: failed to connect to cluster: %v", err))
		return
	}
	sess.upstream = upstream
	defer sess.closeUpstream()

	go b.relayClientToUpstream(sess)
	b.relayUpstreamToClient(sess)

	b.logger.Info("terminal session closed", "session", sess.id, "pod", pod)
}

// fail reports a connection-time failure to the client and tears the
// session down.
func (b *Bridge) fail(sess *session, msg string) {
	b.logger.Warn("terminal session failed", "session", sess.id, "pod", sess.pod, "reason", msg)
	_ = sess.client.WriteMessage(websocket.TextMessage, []byte(redMessage(msg)))
	sess.closeClient()
}

// execURL rewrites the cluster server URL into a WebSocket URL for the
// pod's exec subresource, requesting an interactive TTY shell.
func execURL(serverURL, namespace, pod, container string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("parsing cluster server URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "wss", "ws":
		// already a websocket URL
	default:
		return "", fmt.Errorf("unsupported cluster server URL scheme %q", u.Scheme)
	}

	u.Path = fmt.Sprintf("/api/v1/namespaces/%s/pods/%s/exec", namespace, pod)

	q := url.Values{}
	q.Add("command", "/bin/sh")
	q.Add("command", "-i")
	q.Set("stdin", "true")
	q.Set("stdout", "true")
	q.Set("stderr", "true")
	q.Set("tty", "true")
	if container != "" {
		q.Set("container", container)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// dialUpstream opens the cluster WebSocket with bearer-token auth and
// the cluster CA, negotiating the channel subprotocol.
func (b *Bridge) dialUpstream(upstreamURL string, creds *kubeconfig.Credentials) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+creds.BearerToken)

	tlsConfig := &tls.Config{}
	if len(creds.CAData) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(creds.CAData) {
			return nil, errors.New("cluster CA certificate is not valid PEM")
		}
		tlsConfig.RootCAs = pool
	} else {
		tlsConfig.InsecureSkipVerify = true
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: b.handshakeTimeout,
		TLSClientConfig:  tlsConfig,
		Subprotocols:     []string{execSubprotocol},
	}

	conn, resp, err := dialer.Dial(upstreamURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}

// relayClientToUpstream forwards client input to the cluster as
// stdin-channel frames. Resize control messages are consumed and
// dropped: the exec invocation has no resize channel wired, so there
// is nothing to forward them to.
func (b *Bridge) relayClientToUpstream(sess *session) {
	defer sess.closeUpstream()

	for {
		_, msg, err := sess.client.ReadMessage()
		if err != nil {
			return
		}
		if len(msg) == 0 {
			continue
		}
		if isResizeMessage(msg) {
			continue
		}

		frame := make([]byte, 0, len(msg)+1)
		frame = append(frame, channelStdin)
		frame = append(frame, msg...)
		if err := sess.upstream.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			return
		}
	}
}

// relayUpstreamToClient forwards cluster frames to the client,
// stripping the channel byte. Error-channel payloads are rendered as a
// red terminal message without closing the session; only upstream
// close (or a dead upstream socket) ends it.
func (b *Bridge) relayUpstreamToClient(sess *session) {
	defer sess.closeClient()

	for {
		_, msg, err := sess.upstream.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived) {
				b.writeText(sess, redMessage(fmt.Sprintf("Connection error: %v", err)))
			}
			b.writeText(sess, greenMessage("Session closed"))
			return
		}
		if len(msg) == 0 {
			continue
		}

		channel, payload := msg[0], msg[1:]
		switch channel {
		case channelStdout, channelStderr:
			// stdout and stderr are not distinguished at the client
			if err := sess.client.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case channelError:
			b.writeText(sess, redMessage("Error: "+string(payload)))
		default:
			// unknown channel, ignore
		}
	}
}

func (b *Bridge) writeText(sess *session, msg string) {
	_ = sess.client.WriteMessage(websocket.TextMessage, []byte(msg))
}

// isResizeMessage reports whether a client message is a resize control
// message rather than terminal input.
func isResizeMessage(msg []byte) bool {
	var ctrl struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &ctrl); err != nil {
		return false
	}
	return ctrl.Type == "resize"
}
