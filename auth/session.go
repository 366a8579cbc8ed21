// Package auth tracks the session of a request against the external auth service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNoToken           = errors.New("no session token")
	ErrRejected          = errors.New("session rejected")
	ErrCheckTimeout      = errors.New("session check timed out")
)

type StateKind int

const (
	Unauthenticated StateKind = iota
	Checking
	Authenticated
	Failed
)

func (k StateKind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Checking:
		return "checking"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(k))
}

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	BranchId int    `json:"branch_id"`
}

func (u User) IsAdmin() bool {
	switch strings.ToLower(u.Role) {
	case "admin", "super_admin", "superadmin":
		return true
	}
	return false
}

// State is the current session. User is set only when Authenticated, Reason only when Failed.
type State struct {
	Kind   StateKind
	User   *User
	Reason string
}

type EventKind int

const (
	EventCheck EventKind = iota
	EventVerified
	EventRejected
	EventSignedOut
	EventTimeout
)

type Event struct {
	Kind   EventKind
	Token  string
	User   *User
	Reason string
}

func Check(token string) Event { return Event{Kind: EventCheck, Token: token} }

func Verified(user User) Event { return Event{Kind: EventVerified, User: &user} }

func Rejected(reason string) Event { return Event{Kind: EventRejected, Reason: reason} }

func SignedOut() Event { return Event{Kind: EventSignedOut} }

func Timeout() Event { return Event{Kind: EventTimeout} }

// Next is the transition function. Verified, Rejected and Timeout are only accepted
// while Checking; SignedOut is accepted from any state but Unauthenticated.
func Next(s State, ev Event) (State, error) {
	switch ev.Kind {
	case EventCheck:
		if s.Kind == Checking {
			break
		}
		return State{Kind: Checking}, nil
	case EventVerified:
		if s.Kind != Checking || ev.User == nil {
			break
		}
		return State{Kind: Authenticated, User: ev.User}, nil
	case EventRejected:
		if s.Kind != Checking {
			break
		}
		return State{Kind: Failed, Reason: ev.Reason}, nil
	case EventTimeout:
		if s.Kind != Checking {
			break
		}
		return State{Kind: Failed, Reason: "timeout"}, nil
	case EventSignedOut:
		if s.Kind == Unauthenticated {
			break
		}
		return State{Kind: Unauthenticated}, nil
	}
	return s, fmt.Errorf("%w: event %d in state %s", ErrInvalidTransition, ev.Kind, s.Kind)
}

type Session struct {
	mu    sync.Mutex
	state State
	token string
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Apply moves the session by one event. On error the state is unchanged.
func (s *Session) Apply(ev Event) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := Next(s.state, ev)
	if err != nil {
		return s.state, err
	}
	switch ev.Kind {
	case EventCheck:
		s.token = ev.Token
	case EventSignedOut:
		s.token = ""
	}
	s.state = next
	return next, nil
}

// Run consumes events until the channel closes, an event is illegal or ctx ends.
// When ctx ends mid-check the session fails with a timeout.
func (s *Session) Run(ctx context.Context, events <-chan Event) (State, error) {
	for {
		select {
		case <-ctx.Done():
			if s.State().Kind == Checking {
				_, _ = s.Apply(Timeout())
			}
			return s.State(), ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return s.State(), nil
			}
			if _, err := s.Apply(ev); err != nil {
				return s.State(), err
			}
		}
	}
}

// Verifier checks a token with the auth service.
type Verifier interface {
	Verify(ctx context.Context, token string) (*User, error)
}

// Resolve drives a fresh session through one check of token, giving the verifier at
// most timeout. The returned error is nil only when the session is Authenticated.
func Resolve(ctx context.Context, token string, verifier Verifier, timeout time.Duration) (State, error) {
	session := NewSession()
	token = strings.TrimSpace(token)
	if token == "" {
		return session.State(), ErrNoToken
	}
	if _, err := session.Apply(Check(token)); err != nil {
		return session.State(), err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		user *User
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		user, err := verifier.Verify(ctx, token)
		done <- outcome{user: user, err: err}
	}()

	select {
	case <-ctx.Done():
		state, _ := session.Apply(Timeout())
		return state, fmt.Errorf("%w after %s", ErrCheckTimeout, timeout)
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() != nil {
			state, _ := session.Apply(Timeout())
			return state, fmt.Errorf("%w after %s", ErrCheckTimeout, timeout)
		}
		if out.err != nil || out.user == nil {
			reason := "unknown user"
			if out.err != nil {
				reason = out.err.Error()
			}
			state, _ := session.Apply(Rejected(reason))
			return state, fmt.Errorf("%w: %s", ErrRejected, reason)
		}
		return session.Apply(Verified(*out.user))
	}
}
