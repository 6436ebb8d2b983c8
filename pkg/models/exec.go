package models

// Stream names for exec output chunks
const (
	StreamStdout = "stdout"
	StreamStderr = "stderr"
)

// ExecChunk is one tagged piece of output from an exec stream
type ExecChunk struct {
	Stream string `json:"stream"`
	Data   []byte `json:"data"`
}

// ExecRequest represents a one-shot exec request against a managed pod
type ExecRequest struct {
	Command []string `json:"command" binding:"required"`
}

// ExecResult is the aggregated outcome of a one-shot exec
type ExecResult struct {
	ExitCode int    `json:"exitCode"`
	Output   string `json:"output"`
	Errors   string `json:"errors"`
}
