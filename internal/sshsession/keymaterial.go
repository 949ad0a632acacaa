package sshsession

import (
	"bytes"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const maxKeyPathLength = 4096

// denyListedRoots is checked against the fully resolved (symlinks followed)
// path of a key file; any match rejects the load before the file is opened.
var denyListedRoots = []string{"/etc", "/proc", "/sys", "/dev", "/boot", "/root"}

var opensshCipherTokens = []string{
	"aes128-ctr", "aes192-ctr", "aes256-ctr",
	"aes128-gcm", "aes256-gcm",
	"chacha20-poly1305",
	"bcrypt",
}

// KeyMaterialLoader resolves, validates, and reads private-key files,
// detecting encryption and sanitizing any error before it reaches a caller.
type KeyMaterialLoader struct {
	// homeDir overrides os.UserHomeDir for tests; empty uses the real home.
	homeDir string
}

// NewKeyMaterialLoader creates a loader that resolves "~" against the
// process's real home directory.
func NewKeyMaterialLoader() *KeyMaterialLoader {
	return &KeyMaterialLoader{}
}

func (l *KeyMaterialLoader) userHome() (string, error) {
	if l.homeDir != "" {
		return l.homeDir, nil
	}
	return os.UserHomeDir()
}

// resolvePath validates and fully resolves path, rejecting traversal and
// any path landing inside a deny-listed system directory. It never returns
// a raw path in its error text.
func (l *KeyMaterialLoader) resolvePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", newError(InvalidPath, "key file path must not be empty")
	}
	if len(trimmed) > maxKeyPathLength {
		return "", newError(InvalidPath, "key file path exceeds maximum length")
	}

	expanded := trimmed
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := l.userHome()
		if err != nil {
			return "", newError(InvalidPath, "could not resolve home directory")
		}
		expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
	}

	clean := filepath.Clean(expanded)
	if containsTraversal(trimmed) || containsTraversal(clean) {
		return "", newError(InvalidPath, "key file path must not contain '..'")
	}

	resolved, err := filepath.Abs(clean)
	if err != nil {
		return "", newError(InvalidPath, "could not resolve key file path")
	}

	// Follow the leaf symlink (if any) before the deny-list check.
	if target, err := filepath.EvalSymlinks(resolved); err == nil {
		resolved = target
	}

	for _, root := range denyListedRoots {
		if resolved == root || strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			return "", newError(InvalidPath, "key file path is not allowed")
		}
	}

	return resolved, nil
}

func containsTraversal(p string) bool {
	for _, part := range strings.Split(filepath.ToSlash(p), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

// LoadKey reads and returns the raw bytes of the private key at path. Errors
// never contain the raw path or the user's home directory; ENOENT/EACCES are
// mapped to fixed, generic messages.
func (l *KeyMaterialLoader) LoadKey(path string) ([]byte, error) {
	resolved, err := l.resolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, sanitizeReadError(err)
	}
	return data, nil
}

func sanitizeReadError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return newError(KeyFileInaccessible, "Key file not accessible")
	case errors.Is(err, fs.ErrPermission):
		return newError(KeyFileInaccessible, "Permission denied accessing key file")
	default:
		return newError(KeyFileInaccessible, "Key file not accessible")
	}
}

// IsEncrypted reports whether keyBytes appears to be an encrypted private
// key, inspecting either the classic PEM headers or, for the OpenSSH v1
// format, the decoded payload's cipher name. Payloads that fail to decode
// are treated as encrypted (the safe default).
func IsEncrypted(keyBytes []byte) bool {
	if bytes.Contains(keyBytes, []byte("Proc-Type: 4,ENCRYPTED")) ||
		bytes.Contains(keyBytes, []byte("DEK-Info:")) ||
		bytes.Contains(keyBytes, []byte("ENCRYPTED PRIVATE KEY")) {
		return true
	}

	if bytes.Contains(keyBytes, []byte("BEGIN OPENSSH PRIVATE KEY")) {
		return isEncryptedOpenSSH(keyBytes)
	}

	return false
}

func isEncryptedOpenSSH(keyBytes []byte) bool {
	block, _ := pem.Decode(keyBytes)
	var b64 string
	if block != nil {
		return hasOpenSSHCipherMagic(block.Bytes)
	}

	// Fall back to manually stripping the PEM armor in case pem.Decode
	// rejects the OPENSSH PRIVATE KEY header (it uses a non-standard type).
	lines := strings.Split(string(keyBytes), "\n")
	var body strings.Builder
	inBlock := false
	for _, line := range lines {
		if strings.Contains(line, "BEGIN OPENSSH PRIVATE KEY") {
			inBlock = true
			continue
		}
		if strings.Contains(line, "END OPENSSH PRIVATE KEY") {
			break
		}
		if inBlock {
			body.WriteString(strings.TrimSpace(line))
		}
	}
	b64 = body.String()

	payload, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return true // cannot decode: err on the side of encrypted
	}
	return hasOpenSSHCipherMagic(payload)
}

func hasOpenSSHCipherMagic(payload []byte) bool {
	head := payload
	if len(head) > 200 {
		head = head[:200]
	}
	if !bytes.Contains(head, []byte("openssh-key-v1")) {
		return false
	}
	for _, tok := range opensshCipherTokens {
		if bytes.Contains(head, []byte(tok)) {
			return true
		}
	}
	return false
}
