// Package apperrors defines the typed error taxonomy shared by the NNTP,
// streaming, RAR, and IPTV layers so callers can branch with errors.As
// instead of string matching.
package apperrors

import "fmt"

// Protocol errors

type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string { return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message) }

type AuthRejected struct{ Reason string }

func (e *AuthRejected) Error() string { return "authentication rejected: " + e.Reason }

type ArticleNotFound struct {
	MessageID string
	Code      int
}

func (e *ArticleNotFound) Error() string {
	return fmt.Sprintf("article %s not found (code %d)", e.MessageID, e.Code)
}

type ServiceUnavailable struct{ Message string }

func (e *ServiceUnavailable) Error() string { return "service unavailable: " + e.Message }

// Transport errors

type ConnectionTimeout struct{ Op string }

func (e *ConnectionTimeout) Error() string { return "connection timeout during " + e.Op }

type ConnectionReset struct{ Op string }

func (e *ConnectionReset) Error() string { return "connection reset during " + e.Op }

type TLSError struct{ Inner error }

func (e *TLSError) Error() string { return "tls error: " + e.Inner.Error() }
func (e *TLSError) Unwrap() error { return e.Inner }

// Resource errors

type PoolTimeout struct{ Provider string }

func (e *PoolTimeout) Error() string { return "pool acquisition timed out for provider " + e.Provider }

type PoolClosed struct{ Provider string }

func (e *PoolClosed) Error() string { return "pool closed for provider " + e.Provider }

// Content errors

type MalformedYenc struct{ Reason string }

func (e *MalformedYenc) Error() string { return "malformed yEnc data: " + e.Reason }

type MalformedNzb struct{ Reason string }

func (e *MalformedNzb) Error() string { return "malformed nzb: " + e.Reason }

type InvalidRange struct{ Header string }

func (e *InvalidRange) Error() string { return "invalid range: " + e.Header }

type NotStreamable struct{ Reason string }

func (e *NotStreamable) Error() string { return "not streamable: " + e.Reason }

// Mount/service errors

type MountNotFound struct{ ID string }

func (e *MountNotFound) Error() string { return "mount not found: " + e.ID }

type MountNotReady struct {
	ID     string
	Status string
}

func (e *MountNotReady) Error() string { return fmt.Sprintf("mount %s not ready: %s", e.ID, e.Status) }

type FileNotFound struct {
	MountID   string
	FileIndex int
}

func (e *FileNotFound) Error() string {
	return fmt.Sprintf("file index %d not found in mount %s", e.FileIndex, e.MountID)
}

// Session (IPTV) errors

type SessionExpired struct{}

func (e *SessionExpired) Error() string { return "iptv session expired" }

type PortalError struct{ Message string }

func (e *PortalError) Error() string { return "portal error: " + e.Message }

// Aggregate errors

// ArticleNotFoundEverywhere reports a failed attempt against every configured
// provider. It implements Unwrap() []error so errors.Is/As can still match a
// specific underlying failure class across all attempts.
type ArticleNotFoundEverywhere struct {
	MessageID string
	Attempts  []ProviderAttempt
}

// ProviderAttempt records one provider's outcome for an article fetch.
type ProviderAttempt struct {
	Provider string
	Err      error
}

func (e *ArticleNotFoundEverywhere) Error() string {
	msg := fmt.Sprintf("article %s not found on any provider (%d attempted):", e.MessageID, len(e.Attempts))
	for _, a := range e.Attempts {
		msg += fmt.Sprintf(" [%s: %v]", a.Provider, a.Err)
	}
	return msg
}

func (e *ArticleNotFoundEverywhere) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		if a.Err != nil {
			errs = append(errs, a.Err)
		}
	}
	return errs
}
