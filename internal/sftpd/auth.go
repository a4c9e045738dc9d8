package sftpd

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/chunkdrive/chunkdrive/internal/config"
)

// passwordCallback builds an ssh.ServerConfig PasswordCallback from the
// configured Auth entries. noAuth short-circuits every attempt to success,
// mirroring the source's BaseServerInterface.check_auth_password with
// self.noauth set.
func passwordCallback(auths []config.Auth, noAuth bool) func(ssh.ConnMetadata, []byte) (*ssh.Permissions, error) {
	return func(meta ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
		if noAuth {
			return nil, nil
		}
		for _, a := range auths {
			if a.Username != meta.User() {
				continue
			}
			if a.Password != nil && *a.Password == string(password) {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("sftpd: password rejected for %q", meta.User())
	}
}

// publicKeyCallback builds an ssh.ServerConfig PublicKeyCallback from the
// configured Auth entries' PubKey field.
func publicKeyCallback(auths []config.Auth, noAuth bool) func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error) {
	return func(meta ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
		if noAuth {
			return nil, nil
		}
		presented := key.Marshal()
		for _, a := range auths {
			if a.Username != meta.User() || a.PubKey == "" {
				continue
			}
			allowed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(a.PubKey))
			if err == nil && bytes.Equal(allowed.Marshal(), presented) {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("sftpd: public key rejected for %q", meta.User())
	}
}
