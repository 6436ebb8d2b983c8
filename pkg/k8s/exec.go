package k8s

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"opencode-manager/pkg/models"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/httpstream"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"
)

// streamExecutor is the part of remotecommand.Executor the exec path
// uses. Tests substitute a fake.
type streamExecutor interface {
	StreamWithContext(ctx context.Context, options remotecommand.StreamOptions) error
}

// newExecutor builds an exec-subresource executor for a pod. Tests
// replace it so exec can run against a fake stream.
// WebSocket transport is preferred; SPDY covers older apiservers and
// proxies that reject the upgrade.
var newExecutor = func(conn *connection, namespace, pod string, command []string) (streamExecutor, error) {
	req := conn.client.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(namespace).
		Name(pod).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: ContainerName,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	wsExec, err := remotecommand.NewWebSocketExecutor(conn.restConfig, http.MethodGet, req.URL().String())
	if err != nil {
		return nil, err
	}
	spdyExec, err := remotecommand.NewSPDYExecutor(conn.restConfig, http.MethodPost, req.URL())
	if err != nil {
		return nil, err
	}
	return remotecommand.NewFallbackExecutor(wsExec, spdyExec, func(err error) bool {
		return httpstream.IsUpgradeFailure(err) || httpstream.IsHTTPSProxyError(err)
	})
}

// ExecStream delivers exec output as an ordered sequence of tagged
// chunks followed by the remote process's exit code. Chunk order
// reflects arrival order from the cluster; no ordering is guaranteed
// between stdout and stderr themselves.
type ExecStream struct {
	chunks   chan models.ExecChunk
	done     chan struct{}
	exitCode int
	err      error
}

// Chunks returns the channel of output chunks. It is closed when the
// remote process finishes.
func (s *ExecStream) Chunks() <-chan models.ExecChunk {
	return s.chunks
}

// Wait blocks until the stream ends and returns the exit code. The
// stream's terminal status message is authoritative, not stream EOF.
func (s *ExecStream) Wait() (int, error) {
	<-s.done
	return s.exitCode, s.err
}

// Collect drains the stream into the aggregate result the HTTP
// endpoint needs.
func (s *ExecStream) Collect() (models.ExecResult, error) {
	var stdout, stderr bytes.Buffer
	for chunk := range s.Chunks() {
		switch chunk.Stream {
		case models.StreamStdout:
			stdout.Write(chunk.Data)
		case models.StreamStderr:
			stderr.Write(chunk.Data)
		}
	}

	code, err := s.Wait()
	if err != nil {
		return models.ExecResult{}, err
	}
	return models.ExecResult{
		ExitCode: code,
		Output:   stdout.String(),
		Errors:   stderr.String(),
	}, nil
}

// chunkWriter tags every write and forwards it to the stream channel
type chunkWriter struct {
	stream string
	chunks chan<- models.ExecChunk
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	data := make([]byte, len(p))
	copy(data, p)
	w.chunks <- models.ExecChunk{Stream: w.stream, Data: data}
	return len(p), nil
}

// ExecInPod runs a command inside a managed pod's runner container and
// returns a stream of tagged output chunks terminated by the exit code.
func (m *Manager) ExecInPod(ctx context.Context, name, namespace string, command []string) (*ExecStream, error) {
	conn, err := m.connector.current()
	if err != nil {
		return nil, err
	}
	if len(command) == 0 {
		return nil, errors.New("command is required")
	}

	ns := m.namespaceFor(namespace)
	executor, err := newExecutor(conn, ns, name, command)
	if err != nil {
		return nil, fmt.Errorf("building exec request for pod %s: %w", name, err)
	}

	s := &ExecStream{
		chunks: make(chan models.ExecChunk, 16),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.chunks)

		err := executor.StreamWithContext(ctx, remotecommand.StreamOptions{
			Stdout: &chunkWriter{stream: models.StreamStdout, chunks: s.chunks},
			Stderr: &chunkWriter{stream: models.StreamStderr, chunks: s.chunks},
		})

		// A non-zero remote exit arrives as a CodeExitError in the
		// stream's terminal status message.
		var exitErr utilexec.CodeExitError
		if errors.As(err, &exitErr) {
			s.exitCode = exitErr.Code
			return
		}
		s.err = err
	}()

	return s, nil
}
