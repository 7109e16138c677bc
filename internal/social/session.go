package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/zbrowser/internal/hash/sha256"
	"github.com/JakeFAU/zbrowser/internal/storage"
)

var (
	// ErrNoCredentials is returned when a login is needed but no username or password is configured.
	ErrNoCredentials = errors.New("credentials not configured")
	// ErrLoginFailed is returned when the login form produced no session cookies.
	ErrLoginFailed = errors.New("login failed")
	// ErrSessionExpired is returned when a logged in task is sent back to the login page.
	ErrSessionExpired = errors.New("session expired")
)

// sessionKey names the blob holding a network's cookies for username without
// putting the username itself in the path.
func sessionKey(network, username string) string {
	return "sessions/" + network + "/" + sha256.Short(username, 16) + ".json"
}

// sessionCache keeps one network's login cookies in memory and, when a store is
// configured, in a blob so later runs skip the login form.
type sessionCache struct {
	store  storage.BlobStore
	key    string
	logger *zap.Logger
	login  func(context.Context) (string, error)

	mu         sync.Mutex
	cookies    string
	forceLogin bool
}

// get returns cached cookies, then stored ones, and logs in as a last resort.
func (s *sessionCache) get(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cookies != "" {
		return s.cookies, nil
	}
	if !s.forceLogin && s.store != nil {
		data, err := s.store.GetObject(ctx, s.key)
		switch {
		case err == nil && hasCookies(string(data)):
			s.logger.Info("session loaded", zap.String("key", s.key))
			s.cookies = string(data)
			return s.cookies, nil
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			return "", fmt.Errorf("load session: %w", err)
		}
	}

	cookies, err := s.login(ctx)
	if err != nil {
		return "", err
	}
	if s.store != nil {
		if _, err := s.store.PutObject(ctx, s.key, "application/json", strings.NewReader(cookies)); err != nil {
			s.logger.Warn("persist session", zap.String("key", s.key), zap.Error(err))
		}
	}
	s.cookies = cookies
	s.forceLogin = false
	return cookies, nil
}

// reset drops the cached cookies and skips the store on the next get.
func (s *sessionCache) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cookies = ""
	s.forceLogin = true
}

func hasCookies(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw != "" && raw != "[]" && raw != "null"
}
