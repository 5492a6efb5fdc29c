// Package gtasks exports stored todos to a Google Tasks list.
//
// Authorization uses an installed-app OAuth client (credentials JSON from
// the Google Cloud console). The first run opens a loopback listener to
// capture the redirect; the resulting token is kept in a file and
// refreshed tokens are written back to it.
package gtasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

// DefaultAuthPort is the loopback port the redirect listener binds.
const DefaultAuthPort = "6789"

// ErrNoToken is returned when no stored token exists yet.
var ErrNoToken = errors.New("no google token; run `tasksift auth-google` first")

// OAuthConfig reads an installed-app credentials file and pins its redirect
// to the local listener port.
func OAuthConfig(credentialsFile, port string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading google credentials %s: %w", credentialsFile, err)
	}
	conf, err := google.ConfigFromJSON(b, tasks.TasksScope)
	if err != nil {
		return nil, fmt.Errorf("parsing google credentials: %w", err)
	}
	if port == "" {
		port = DefaultAuthPort
	}
	conf.RedirectURL = loopbackRedirect(conf.RedirectURL, port)
	return conf, nil
}

// loopbackRedirect rewrites OOB and bare localhost redirects to
// http://localhost:<port>/oauth2callback. Other hosts are left alone.
func loopbackRedirect(raw, port string) string {
	fallback := fmt.Sprintf("http://localhost:%s/oauth2callback", port)
	if raw == "" || raw == "urn:ietf:wg:oauth:2.0:oob" {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fallback
	}
	if u.Hostname() != "localhost" && u.Hostname() != "127.0.0.1" {
		return raw
	}
	u.Host = net.JoinHostPort(u.Hostname(), port)
	if u.Path == "" || u.Path == "/" {
		u.Path = "/oauth2callback"
	}
	return u.String()
}

// LoadToken reads a token file written by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("reading token %s: %w", path, err)
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(b, tok); err != nil {
		return nil, fmt.Errorf("decoding token %s: %w", path, err)
	}
	return tok, nil
}

// SaveToken writes tok as JSON, owner read/write only.
func SaveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	b, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("writing token %s: %w", path, err)
	}
	return nil
}

// persistingSource writes refreshed tokens back to disk.
type persistingSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := SaveToken(s.path, tok); err != nil {
			return nil, err
		}
	}
	return tok, nil
}

// NewService builds a Tasks API client from a credentials file and a
// stored token. Extra client options (endpoint overrides) are appended.
func NewService(ctx context.Context, credentialsFile, tokenFile string, opts ...option.ClientOption) (*tasks.Service, error) {
	conf, err := OAuthConfig(credentialsFile, "")
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	src := &persistingSource{
		base: conf.TokenSource(ctx, tok),
		path: tokenFile,
		last: tok.AccessToken,
	}
	client := oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src))
	opts = append([]option.ClientOption{option.WithHTTPClient(client)}, opts...)
	svc, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating google tasks service: %w", err)
	}
	return svc, nil
}

// Authorize runs the loopback authorization-code flow: it prints the
// consent URL to out, waits for the redirect on ln, exchanges the code and
// returns the token. The caller owns saving it.
func Authorize(ctx context.Context, conf *oauth2.Config, ln net.Listener, out io.Writer) (*oauth2.Token, error) {
	state := fmt.Sprintf("tasksift-%d", time.Now().UnixNano())
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Handler:      callbackHandler(state, codeCh, errCh),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case errCh <- fmt.Errorf("callback server: %w", err):
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Fprintf(out, "Open this URL in your browser to authorize tasksift:\n%s\n", authURL)

	select {
	case code := <-codeCh:
		tok, err := conf.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code: %w", err)
		}
		return tok, nil
	case err := <-errCh:
		return nil, err
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization aborted: %w", ctx.Err())
	}
}

func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if msg := q.Get("error"); msg != "" {
			http.Error(w, "authorization denied", http.StatusBadRequest)
			select {
			case errCh <- fmt.Errorf("authorization denied: %s", msg):
			default:
			}
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "authorization code not found", http.StatusBadRequest)
			return
		}
		fmt.Fprintln(w, "Authorization complete. You can close this window.")
		select {
		case codeCh <- code:
		default:
		}
	})
}
