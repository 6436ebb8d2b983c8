package kubeconfig

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const caPEM = "-----BEGIN CERTIFICATE-----\nMIIB\n-----END CERTIFICATE-----\n"

func TestParse_TokenUser(t *testing.T) {
	data := `
apiVersion: v1
kind: Config
current-context: prod
clusters:
- name: prod
  cluster:
    server: https://10.0.0.1:6443
    certificate-authority-data: ` + base64.StdEncoding.EncodeToString([]byte(caPEM)) + `
contexts:
- name: prod
  context:
    cluster: prod
    user: deployer
    namespace: builds
users:
- name: deployer
  user:
    token: abc123
`

	creds, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "https://10.0.0.1:6443", creds.ServerURL)
	assert.Equal(t, "abc123", creds.BearerToken)
	assert.Equal(t, "builds", creds.Namespace)
	assert.Equal(t, []byte(caPEM), creds.CAData)
}

func TestParse_TokenFile(t *testing.T) {
	tokenPath := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(tokenPath, []byte("filetoken\n"), 0600))

	data := `
current-context: prod
clusters:
- name: prod
  cluster:
    server: https://10.0.0.1:6443
contexts:
- name: prod
  context:
    cluster: prod
    user: deployer
users:
- name: deployer
  user:
    tokenFile: ` + tokenPath + `
`

	creds, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "filetoken", creds.BearerToken, "token file contents must be trimmed")
	assert.Empty(t, creds.CAData)
}

func TestParse_CertificateAuthorityFile(t *testing.T) {
	caPath := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(caPath, []byte(caPEM), 0600))

	data := `
current-context: prod
clusters:
- name: prod
  cluster:
    server: https://10.0.0.1:6443
    certificate-authority: ` + caPath + `
contexts:
- name: prod
  context:
    cluster: prod
    user: deployer
users:
- name: deployer
  user:
    token: abc123
`

	creds, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, []byte(caPEM), creds.CAData)
}

func TestParse_CertificateOnlyUserRejected(t *testing.T) {
	data := `
current-context: prod
clusters:
- name: prod
  cluster:
    server: https://10.0.0.1:6443
contexts:
- name: prod
  context:
    cluster: prod
    user: admin
users:
- name: admin
  user:
    client-certificate-data: Zm9v
    client-key-data: YmFy
`

	_, err := Parse([]byte(data))
	assert.ErrorIs(t, err, ErrTokenRequired)
}

func TestParse_NoCurrentContext(t *testing.T) {
	_, err := Parse([]byte("clusters: []\n"))
	assert.ErrorIs(t, err, ErrNoCurrentContext)
}

func TestParse_UnknownContext(t *testing.T) {
	data := `
current-context: staging
contexts:
- name: prod
  context:
    cluster: prod
    user: deployer
`
	_, err := Parse([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "staging")
}

func TestParse_MissingCluster(t *testing.T) {
	data := `
current-context: prod
contexts:
- name: prod
  context:
    cluster: gone
    user: deployer
users:
- name: deployer
  user:
    token: abc123
`
	_, err := Parse([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone")
}

func TestParse_BadCAData(t *testing.T) {
	data := `
current-context: prod
clusters:
- name: prod
  cluster:
    server: https://10.0.0.1:6443
    certificate-authority-data: "%%%not-base64%%%"
contexts:
- name: prod
  context:
    cluster: prod
    user: deployer
users:
- name: deployer
  user:
    token: abc123
`
	_, err := Parse([]byte(data))
	assert.Error(t, err)
}

func TestParse_NotYAML(t *testing.T) {
	_, err := Parse([]byte("\tnot: [valid"))
	assert.Error(t, err)
}

func TestResolve_MissingFile(t *testing.T) {
	_, err := Resolve(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestResolve_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kubeconfig")
	data := `
current-context: prod
clusters:
- name: prod
  cluster:
    server: https://10.0.0.1:6443
contexts:
- name: prod
  context:
    cluster: prod
    user: deployer
users:
- name: deployer
  user:
    token: abc123
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))

	creds, err := Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, "abc123", creds.BearerToken)
}
