package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testClientJSON = `{"installed":{"client_id":"cid","client_secret":"secret","redirect_uris":["http://localhost"],"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token"}}`

func TestOAuthConfig(t *testing.T) {
	cfg, err := OAuthConfig([]byte(testClientJSON))
	if err != nil {
		t.Fatalf("OAuthConfig: %v", err)
	}
	if cfg.ClientID != "cid" {
		t.Errorf("client id = %q", cfg.ClientID)
	}
	if len(cfg.Scopes) != 1 || !strings.Contains(cfg.Scopes[0], "spreadsheets") {
		t.Errorf("scopes = %v", cfg.Scopes)
	}

	if _, err := OAuthConfig([]byte("invalid-json")); err == nil || !strings.Contains(err.Error(), "oauth config") {
		t.Errorf("expected oauth config error, got %v", err)
	}
}

func TestTokenFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %v, want 0600", perm)
	}

	got, err := LoadToken("", path)
	if err != nil {
		t.Fatalf("LoadToken: %v", err)
	}
	if got.AccessToken != "a" || got.RefreshToken != "r" {
		t.Errorf("unexpected token %+v", got)
	}
}

func TestLoadToken_Errors(t *testing.T) {
	tests := []struct {
		name, inline, file, want string
	}{
		{"missing", "", "", "missing oauth token"},
		{"unreadable", "", "/does/not/exist.json", "read oauth token"},
		{"invalid", "{", "", "parse oauth token"},
		{"empty", `{"token_type":"Bearer"}`, "", "neither access nor refresh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadToken(tt.inline, tt.file)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNew_OAuthRequiresToken(t *testing.T) {
	_, err := New(context.Background(), Config{SpreadsheetID: "x", OAuthClientJSON: testClientJSON}, nil)
	if err == nil || !strings.Contains(err.Error(), "missing oauth token") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNew_OAuth(t *testing.T) {
	c, err := New(context.Background(), Config{
		SpreadsheetID:   "x",
		OAuthClientJSON: testClientJSON,
		OAuthTokenJSON:  `{"access_token":"test","token_type":"Bearer"}`,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if c.sheetBase != "Meals" {
		t.Errorf("sheet base = %q", c.sheetBase)
	}
}

func TestAuthorizeUser(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "granted" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`))
	}))
	defer tokenSrv.Close()

	cfg := &oauth2.Config{
		ClientID:     "cid",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{AuthURL: "https://example.invalid/auth", TokenURL: tokenSrv.URL},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tok, err := AuthorizeUser(ctx, cfg, "0", func(consent string) {
		u, err := url.Parse(consent)
		if err != nil {
			t.Errorf("consent url: %v", err)
			return
		}
		q := u.Query()
		cb := q.Get("redirect_uri") + "?code=granted&state=" + url.QueryEscape(q.Get("state"))
		go func() {
			resp, err := http.Get(cb)
			if err == nil {
				resp.Body.Close()
			}
		}()
	})
	if err != nil {
		t.Fatalf("AuthorizeUser: %v", err)
	}
	if tok.AccessToken != "at" || tok.RefreshToken != "rt" {
		t.Errorf("unexpected token %+v", tok)
	}
}

func TestAuthorizeUser_StateMismatch(t *testing.T) {
	cfg := &oauth2.Config{ClientID: "cid", Endpoint: oauth2.Endpoint{AuthURL: "https://example.invalid/auth", TokenURL: "https://example.invalid/token"}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := AuthorizeUser(ctx, cfg, "0", func(consent string) {
		u, _ := url.Parse(consent)
		cb := u.Query().Get("redirect_uri") + "?code=granted&state=forged"
		go func() {
			resp, err := http.Get(cb)
			if err == nil {
				resp.Body.Close()
			}
		}()
	})
	if err == nil || !strings.Contains(err.Error(), "state mismatch") {
		t.Fatalf("expected state mismatch, got %v", err)
	}
}
