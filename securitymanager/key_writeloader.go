package securitymanager

import (
	"fmt"
	"os"
	"strings"
)

// Embedded in the *SecurityManager types to load and store a CURVE keypair.
type keyWriteLoader struct {
	public, private string
}

/*
Load public and private key (Z85, 40 characters each) from the given files. A file name of
DONOTREAD leaves that key untouched, e.g. LoadKeys(DONOTREAD, "priv.key") only reads the
private key.
*/
func (mgr *keyWriteLoader) LoadKeys(publicFile, privateFile string) error {
	if publicFile != DONOTREAD {
		key, err := readKey(publicFile)
		if err != nil {
			return err
		}
		mgr.public = key
	}
	if privateFile != DONOTREAD {
		key, err := readKey(privateFile)
		if err != nil {
			return err
		}
		mgr.private = key
	}
	return nil
}

func readKey(filename string) (string, error) {
	buf, err := os.ReadFile(filename)
	if err != nil {
		return "", err
	}
	key := strings.TrimSpace(string(buf))
	if len(key) != Z85_KEY_LENGTH {
		return "", fmt.Errorf("%s: expected a %d character key, got %d", filename, Z85_KEY_LENGTH, len(key))
	}
	return key, nil
}

// Write the keypair to the given files; DONOTWRITE skips a file.
func (mgr *keyWriteLoader) WriteKeys(publicFile, privateFile string) error {
	if publicFile != DONOTWRITE {
		if err := writeKey(publicFile, mgr.public, 0644); err != nil {
			return err
		}
	}
	if privateFile != DONOTWRITE {
		if err := writeKey(privateFile, mgr.private, 0600); err != nil {
			return err
		}
	}
	return nil
}

func writeKey(filename, key string, perm os.FileMode) error {
	if len(key) != Z85_KEY_LENGTH {
		return fmt.Errorf("refusing to write a %d character key to %s", len(key), filename)
	}
	return os.WriteFile(filename, []byte(key+"\n"), perm)
}

// Returns the public key.
func (mgr *keyWriteLoader) GetPublicKey() string {
	return mgr.public
}

// Set the keypair explicitly.
func (mgr *keyWriteLoader) SetKeys(public, private string) {
	mgr.public, mgr.private = public, private
}
