package publish

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rpicam-archiver/rpicam-archiver-go/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// Connector builds an authenticated YouTube service.
type Connector func(ctx context.Context) (*youtube.Service, error)

// Session lazily creates one YouTube service and reuses it for the process
// lifetime. A failed connect is not cached.
type Session struct {
	connect Connector

	mu  sync.Mutex
	svc *youtube.Service
}

// NewSession creates a Session that connects on first use.
func NewSession(connect Connector) *Session {
	return &Session{connect: connect}
}

// Service returns the shared service, connecting if needed.
func (s *Session) Service(ctx context.Context) (*youtube.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.svc != nil {
		return s.svc, nil
	}

	svc, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	s.svc = svc
	logger.Log.Info("YouTube session established")
	return svc, nil
}

// ConsentFunc obtains an authorization code for authURL from the operator.
type ConsentFunc func(authURL string) (code string, err error)

// ConsoleConsent prints the consent URL and reads the code from in.
func ConsoleConsent(in io.Reader, out io.Writer) ConsentFunc {
	return func(authURL string) (string, error) {
		fmt.Fprintf(out, "Authorize this app by visiting:\n%s\nEnter the authorization code: ", authURL)
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to read authorization code: %w", err)
		}
		code := strings.TrimSpace(line)
		if code == "" {
			return "", errors.New("empty authorization code")
		}
		return code, nil
	}
}

// OAuthConnector returns a Connector that authenticates with the installed-app
// client secrets at secretsPath and the cached token at tokenPath. Without a
// cached token it asks consent for one; refreshed tokens are written back.
func OAuthConnector(secretsPath, tokenPath string, consent ConsentFunc) Connector {
	return func(ctx context.Context) (*youtube.Service, error) {
		// The session outlives the request that created it.
		ctx = context.WithoutCancel(ctx)

		secrets, err := os.ReadFile(secretsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read client secrets: %w", err)
		}

		cfg, err := google.ConfigFromJSON(secrets, youtube.YoutubeUploadScope)
		if err != nil {
			return nil, fmt.Errorf("failed to parse client secrets: %w", err)
		}

		tok, err := loadToken(tokenPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, err
			}
			tok, err = exchange(ctx, cfg, consent)
			if err != nil {
				return nil, err
			}
			if err := saveToken(tokenPath, tok); err != nil {
				return nil, err
			}
		}

		ts := &persistingTokenSource{
			base: cfg.TokenSource(ctx, tok),
			path: tokenPath,
			last: tok.AccessToken,
		}
		client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, ts))

		return youtube.NewService(ctx, option.WithHTTPClient(client))
	}
}

func exchange(ctx context.Context, cfg *oauth2.Config, consent ConsentFunc) (*oauth2.Token, error) {
	if consent == nil {
		return nil, errors.New("no cached YouTube token and no way to ask for consent")
	}
	code, err := consent(cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline))
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("failed to decode token %s: %w", path, err)
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save token %s: %w", path, err)
	}
	return nil
}

// persistingTokenSource writes every newly minted token to disk.
type persistingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (p *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := p.base.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		if err := saveToken(p.path, tok); err != nil {
			logger.Log.Warn("Failed to persist refreshed token", zap.Error(err))
		}
	}
	return tok, nil
}
