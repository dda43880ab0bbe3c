package secrets

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"filippo.io/age"
	"github.com/vk/burstci/internal/env"
)

// AgeFile resolves secrets from an age-encrypted file of KEY=VALUE lines.
// The file is decrypted on every Resolve; nothing is cached in memory
// between calls.
type AgeFile struct {
	path         string
	identityPath string
}

// NewAgeFile creates a provider for the encrypted file at path, decrypted
// with the identities in identityPath.
func NewAgeFile(path, identityPath string) *AgeFile {
	return &AgeFile{path: path, identityPath: identityPath}
}

// Resolve implements Provider.
func (a *AgeFile) Resolve(_ context.Context, names []string) (map[string]string, error) {
	idFile, err := os.Open(a.identityPath)
	if err != nil {
		return nil, fmt.Errorf("opening identity file: %w", err)
	}
	defer idFile.Close()
	identities, err := age.ParseIdentities(idFile)
	if err != nil {
		return nil, fmt.Errorf("parsing identity file: %w", err)
	}

	ciphertext, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("reading secrets file: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting secrets file: %w", err)
	}
	values, err := env.ParseAssignments(reader)
	if err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return pick(values, names)
}

// Encrypt writes values as KEY=VALUE lines encrypted to the given age
// recipient keys (age1... format).
func Encrypt(w io.Writer, values map[string]string, recipientKeys ...string) error {
	if len(recipientKeys) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	writer, err := age.Encrypt(w, recipients...)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(writer, "%s=%s\n", k, values[k]); err != nil {
			return fmt.Errorf("writing plaintext to age encryptor: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}
	return nil
}
