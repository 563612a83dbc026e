package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"
)

// KeyringResolver reads secrets from the system keychain (macOS Keychain,
// Secret Service on Linux, Windows Credential Manager).
type KeyringResolver struct{}

// Scheme returns "keyring".
func (r *KeyringResolver) Scheme() string {
	return "keyring"
}

// Resolve fetches keyring://service/account.
func (r *KeyringResolver) Resolve(ctx context.Context, reference string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	service, account, err := parseKeyringReference(reference)
	if err != nil {
		return "", err
	}

	val, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", &NotFoundError{Reference: reference, Backend: "system keychain"}
		}
		return "", &BackendError{
			Backend:   "system keychain",
			Reference: reference,
			Reason:    err.Error(),
			Fix:       "On Linux, make sure a Secret Service provider (gnome-keyring, kwallet) is running.",
			Err:       err,
		}
	}
	return strings.TrimSpace(val), nil
}

// SaveToKeyring stores value under a keyring:// reference, overwriting any
// existing entry. Hosts use it to provision the API key once.
func SaveToKeyring(reference, value string) error {
	service, account, err := parseKeyringReference(reference)
	if err != nil {
		return err
	}
	if value == "" {
		return fmt.Errorf("refusing to store empty secret at %s", reference)
	}
	if err := keyring.Set(service, account, value); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

// DeleteFromKeyring removes a keyring:// entry. Missing entries are not an error.
func DeleteFromKeyring(reference string) error {
	service, account, err := parseKeyringReference(reference)
	if err != nil {
		return err
	}
	if err := keyring.Delete(service, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

// parseKeyringReference splits keyring://service/account.
func parseKeyringReference(ref string) (service, account string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", &InvalidReferenceError{Reference: ref, Reason: "invalid URI"}
	}
	if u.Scheme != "keyring" {
		return "", "", &InvalidReferenceError{Reference: ref, Reason: "expected keyring:// scheme"}
	}

	service = u.Host
	account = strings.TrimPrefix(u.Path, "/")
	if service == "" || account == "" {
		return "", "", &InvalidReferenceError{Reference: ref, Reason: "expected keyring://service/account"}
	}
	return service, account, nil
}
