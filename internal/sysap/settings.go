package sysap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/muurk/freeathome/internal/version"
)

// User is an account listed in the SysAP settings document
type User struct {
	Name string `json:"name"`
	JID  string `json:"jid"`
}

// Settings is the subset of /settings.json this client reads
type Settings struct {
	Flags struct {
		Version      string `json:"version"`
		SerialNumber string `json:"serialNumber"`
		Name         string `json:"name"`
	} `json:"flags"`
	Users []User `json:"users"`
}

// FetchSettings reads http://<host>/settings.json. The SysAP serves it
// without authentication.
func FetchSettings(ctx context.Context, httpClient *http.Client, host string) (*Settings, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	url := host
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + host
	}
	url = strings.TrimRight(url, "/") + "/settings.json"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Accept", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &s, nil
}

// LookupJID returns the JID of a named user. Login names on the SysAP are
// display names; SASL needs the JID localpart.
func (s *Settings) LookupJID(username string) (string, error) {
	for _, u := range s.Users {
		if strings.EqualFold(u.Name, username) {
			return u.JID, nil
		}
	}
	return "", fmt.Errorf("user %q not found on SysAP", username)
}

// Localpart returns the part of a JID before '@'
func Localpart(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
