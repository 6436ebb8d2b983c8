// Package kubeconfig resolves the credentials the terminal bridge
// needs from an on-disk kubeconfig: server URL, CA bundle, and bearer
// token. The bridge dials the exec subresource itself and only
// supports token-based authentication; users configured with client
// certificates alone are rejected.
package kubeconfig

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
)

var (
	ErrNoCurrentContext = errors.New("kubeconfig has no current-context")
	ErrTokenRequired    = errors.New("token-based authentication required: the terminal bridge does not support client certificate credentials")
)

// Credentials is the resolved authentication context for one cluster
type Credentials struct {
	ServerURL   string
	CAData      []byte // PEM, empty when the cluster has no CA configured
	BearerToken string
	Namespace   string // context default namespace, may be empty
}

// kubeconfigFile mirrors the subset of the kubeconfig format the
// bridge needs: clusters, contexts, and users.
type kubeconfigFile struct {
	CurrentContext string `yaml:"current-context"`
	Clusters       []struct {
		Name    string `yaml:"name"`
		Cluster struct {
			Server                   string `yaml:"server"`
			CertificateAuthorityData string `yaml:"certificate-authority-data"`
			CertificateAuthority     string `yaml:"certificate-authority"`
		} `yaml:"cluster"`
	} `yaml:"clusters"`
	Contexts []struct {
		Name    string `yaml:"name"`
		Context struct {
			Cluster   string `yaml:"cluster"`
			User      string `yaml:"user"`
			Namespace string `yaml:"namespace"`
		} `yaml:"context"`
	} `yaml:"contexts"`
	Users []struct {
		Name string `yaml:"name"`
		User struct {
			Token                 string `yaml:"token"`
			TokenFile             string `yaml:"tokenFile"`
			ClientCertificateData string `yaml:"client-certificate-data"`
			ClientKeyData         string `yaml:"client-key-data"`
		} `yaml:"user"`
	} `yaml:"users"`
}

// Resolve reads the kubeconfig at path and resolves the current
// context's cluster and user into bridge credentials.
func Resolve(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading kubeconfig: %w", err)
	}
	return Parse(data)
}

// Parse resolves credentials from raw kubeconfig YAML
func Parse(data []byte) (*Credentials, error) {
	var kc kubeconfigFile
	if err := yaml.Unmarshal(data, &kc); err != nil {
		return nil, fmt.Errorf("parsing kubeconfig: %w", err)
	}

	if kc.CurrentContext == "" {
		return nil, ErrNoCurrentContext
	}

	var clusterName, userName, namespace string
	for _, c := range kc.Contexts {
		if c.Name == kc.CurrentContext {
			clusterName = c.Context.Cluster
			userName = c.Context.User
			namespace = c.Context.Namespace
			break
		}
	}
	if clusterName == "" {
		return nil, fmt.Errorf("context %q not found in kubeconfig", kc.CurrentContext)
	}

	creds := &Credentials{Namespace: namespace}

	found := false
	for _, c := range kc.Clusters {
		if c.Name != clusterName {
			continue
		}
		found = true
		creds.ServerURL = c.Cluster.Server
		if c.Cluster.CertificateAuthorityData != "" {
			ca, err := base64.StdEncoding.DecodeString(c.Cluster.CertificateAuthorityData)
			if err != nil {
				return nil, fmt.Errorf("decoding certificate-authority-data: %w", err)
			}
			creds.CAData = ca
		} else if c.Cluster.CertificateAuthority != "" {
			ca, err := os.ReadFile(c.Cluster.CertificateAuthority)
			if err != nil {
				return nil, fmt.Errorf("reading certificate-authority file: %w", err)
			}
			creds.CAData = ca
		}
		break
	}
	if !found {
		return nil, fmt.Errorf("cluster %q not found in kubeconfig", clusterName)
	}
	if creds.ServerURL == "" {
		return nil, fmt.Errorf("cluster %q has no server URL", clusterName)
	}

	for _, u := range kc.Users {
		if u.Name != userName {
			continue
		}
		switch {
		case u.User.Token != "":
			creds.BearerToken = u.User.Token
		case u.User.TokenFile != "":
			token, err := os.ReadFile(u.User.TokenFile)
			if err != nil {
				return nil, fmt.Errorf("reading token file: %w", err)
			}
			creds.BearerToken = strings.TrimSpace(string(token))
		}
		break
	}
	if creds.BearerToken == "" {
		return nil, ErrTokenRequired
	}

	return creds, nil
}
