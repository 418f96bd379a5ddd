package verify

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // maintained fork
	"github.com/ZebulonRouseFrantzich/n8nbox/internal/fault"
	"github.com/hashicorp/go-hclog"
)

const (
	checksumFile  = "SHASUMS256.txt"
	signatureFile = "SHASUMS256.txt.sig"
)

// ChecksumList reads digests from a Node.js style release directory
// (<mirror>/<version>/SHASUMS256.txt), optionally authenticating the list
// with its detached OpenPGP signature.
type ChecksumList struct {
	Mirror      string
	KeyringPath string
	Client      *http.Client
	Logger      hclog.Logger
}

// Lookup returns the digest published for fileName in release version.
//
// The Result is Verified when the list's signature checked out against
// the keyring and Skipped otherwise; a Skipped result may still carry a
// digest from an unsigned list. A signature that is present but does not
// verify is a fault.ErrIntegrity error.
func (c *ChecksumList) Lookup(ctx context.Context, version, fileName string) (string, Result, error) {
	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := c.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	base := strings.TrimRight(c.Mirror, "/") + "/" + path.Clean(version)
	list, err := get(ctx, client, base+"/"+checksumFile, nil)
	if err != nil {
		return "", Skipped(fmt.Sprintf("checksum list unavailable: %v", err)), nil
	}

	digest, err := findChecksum(list, fileName)
	if err != nil {
		return "", Skipped(err.Error()), nil
	}

	if c.KeyringPath == "" {
		return digest, Skipped("checksum list signature not checked"), nil
	}

	keyring, err := loadKeyring(c.KeyringPath)
	if err != nil {
		return "", Result{}, fault.Filesystem("load keyring "+c.KeyringPath, err)
	}

	sig, err := get(ctx, client, base+"/"+signatureFile, nil)
	if err != nil {
		logger.Warn("checksum signature unavailable", "version", version, "error", err)
		return digest, Skipped(fmt.Sprintf("signature unavailable: %v", err)), nil
	}

	if err := checkSignature(keyring, list, sig); err != nil {
		return "", Result{}, fault.Integrity("verify "+checksumFile+" signature", err)
	}
	logger.Debug("checksum list signature verified", "version", version)
	return digest, Verified(digest), nil
}

// findChecksum finds the digest for filename in a sha256sum style list.
// Format: "abc123...  node-v20.19.0-linux-x64.tar.gz"
func findChecksum(list []byte, filename string) (string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(list))
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		name := strings.TrimPrefix(parts[1], "*")
		if name != filename && path.Base(name) != filename {
			continue
		}
		sum := strings.ToLower(parts[0])
		if !sha256Hex.MatchString(sum) {
			return "", fmt.Errorf("malformed checksum for %s", filename)
		}
		return sum, nil
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scan checksum list: %w", err)
	}
	return "", fmt.Errorf("checksum not found for %s", filename)
}

// loadKeyring reads an armored or binary OpenPGP keyring.
func loadKeyring(p string) (openpgp.EntityList, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	keyring, err := openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	if err != nil {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
	}
	if len(keyring) == 0 {
		return nil, errors.New("keyring is empty")
	}
	return keyring, nil
}

// checkSignature tries an armored signature first, then binary.
func checkSignature(keyring openpgp.EntityList, signed, sig []byte) error {
	_, err := openpgp.CheckArmoredDetachedSignature(keyring, bytes.NewReader(signed), bytes.NewReader(sig), nil)
	if err == nil {
		return nil
	}
	_, err = openpgp.CheckDetachedSignature(keyring, bytes.NewReader(signed), bytes.NewReader(sig), nil)
	return err
}
