// Package auth tracks the QR-code login flow and the identity it yields.
package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kurihiro0119/bili-comment/internal/domain"
	"github.com/kurihiro0119/bili-comment/internal/gateway"
)

// Phase is the state of the login state machine.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseQRIssued  Phase = "qr-issued"
	PhasePolling   Phase = "polling"
	PhaseConfirmed Phase = "confirmed"
	PhaseExpired   Phase = "expired"
	PhaseError     Phase = "error"
)

// ScanPrompt is the message shown while waiting for the first scan.
const ScanPrompt = "scan the QR code with the bilibili app"

// Snapshot is a consistent view of the session.
type Snapshot struct {
	Phase    Phase
	Status   domain.LoginStatus
	Message  string
	QR       *domain.QRCredential
	Identity *domain.UserIdentity
}

// LoggedIn reports whether the snapshot holds an authenticated identity.
func (s Snapshot) LoggedIn() bool {
	return s.Identity != nil && s.Identity.IsAuthenticated
}

// Session is the login state machine. It never schedules anything itself;
// see Watcher for repeated polling.
type Session struct {
	gw     gateway.Gateway
	logger *slog.Logger

	mu       sync.Mutex
	phase    Phase
	status   domain.LoginStatus
	message  string
	qr       *domain.QRCredential
	identity *domain.UserIdentity
	onChange func(Snapshot)

	refreshes sync.WaitGroup
}

// NewSession creates an idle session.
func NewSession(gw gateway.Gateway, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		gw:     gw,
		logger: logger,
		phase:  PhaseIdle,
		status: domain.LoginStatusWaiting,
	}
}

// OnChange registers fn to be called after every state change.
func (s *Session) OnChange(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// RequestQR starts a new login attempt, discarding the previous credential.
func (s *Session) RequestQR(ctx context.Context) (*domain.QRCredential, error) {
	s.update(func() {
		s.qr = nil
		s.status = domain.LoginStatusWaiting
		s.message = ScanPrompt
	})

	qr, err := s.gw.GetLoginQRCode(ctx)
	if err != nil {
		s.update(func() {
			s.phase = PhaseError
			s.status = domain.LoginStatusError
			s.message = err.Error()
		})
		return nil, err
	}

	s.update(func() {
		s.qr = qr
		s.phase = PhaseQRIssued
	})
	return qr, nil
}

// PollOnce asks the backend for the status of the held QR credential.
// It returns (nil, nil) when no credential is held. A confirmed status
// dispatches an identity refresh that completes independently of this call.
func (s *Session) PollOnce(ctx context.Context) (*domain.LoginPollOutcome, error) {
	s.mu.Lock()
	if s.qr == nil {
		s.mu.Unlock()
		return nil, nil
	}
	key := s.qr.QRCodeKey
	s.mu.Unlock()

	outcome, err := s.gw.PollLoginStatus(ctx, key)

	s.mu.Lock()
	if s.qr == nil || s.qr.QRCodeKey != key {
		// a newer attempt or a logout replaced the credential
		s.mu.Unlock()
		return outcome, err
	}
	s.mu.Unlock()

	if err != nil {
		s.update(func() {
			s.phase = PhaseError
			s.status = domain.LoginStatusError
			s.message = err.Error()
		})
		return nil, err
	}

	s.update(func() {
		s.status = outcome.Status
		s.message = outcome.Message
		s.phase = phaseFor(outcome.Status)
	})

	if outcome.Status == domain.LoginStatusConfirmed {
		s.refreshes.Add(1)
		go func() {
			defer s.refreshes.Done()
			if _, err := s.FetchUserInfo(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to fetch user info after login", "error", err)
			}
		}()
	}
	return outcome, nil
}

func phaseFor(status domain.LoginStatus) Phase {
	switch status {
	case domain.LoginStatusConfirmed:
		return PhaseConfirmed
	case domain.LoginStatusExpired:
		return PhaseExpired
	case domain.LoginStatusError:
		return PhaseError
	}
	return PhasePolling
}

// WaitIdentity blocks until every dispatched identity refresh has finished.
func (s *Session) WaitIdentity() {
	s.refreshes.Wait()
}

// FetchUserInfo refreshes the identity. On failure the identity is cleared.
func (s *Session) FetchUserInfo(ctx context.Context) (*domain.UserIdentity, error) {
	user, err := s.gw.GetUserInfo(ctx)
	if err != nil {
		s.update(func() { s.identity = nil })
		return nil, err
	}
	s.update(func() { s.identity = user })
	return user, nil
}

// Logout ends the session remotely. Local state is only reset on success.
func (s *Session) Logout(ctx context.Context) error {
	if err := s.gw.Logout(ctx); err != nil {
		return err
	}
	s.update(func() {
		s.identity = nil
		s.qr = nil
		s.status = domain.LoginStatusWaiting
		s.message = ""
		s.phase = PhaseIdle
	})
	return nil
}

// CheckValidity asks whether the backend session is still valid.
// Any failure counts as invalid and clears the identity.
func (s *Session) CheckValidity(ctx context.Context) bool {
	valid, err := s.gw.CheckLoginValid(ctx)
	if err != nil {
		s.logger.Warn("login validity check failed", "error", err)
	}
	if err != nil || !valid {
		s.update(func() { s.identity = nil })
		return false
	}
	return true
}

// IsLoggedIn reports whether an authenticated identity is held.
func (s *Session) IsLoggedIn() bool {
	return s.Snapshot().LoggedIn()
}

// Status returns the last known login status.
func (s *Session) Status() domain.LoginStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:    s.phase,
		Status:   s.status,
		Message:  s.message,
		QR:       s.qr,
		Identity: s.identity,
	}
}

func (s *Session) update(mutate func()) {
	s.mu.Lock()
	mutate()
	snap := s.snapshotLocked()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
}
