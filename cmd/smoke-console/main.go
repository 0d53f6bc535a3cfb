package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	base := strings.TrimRight(envOr("ADMINTABLE_CONSOLE_URL", "http://localhost:8080"), "/")
	user := envOr("ADMINTABLE_SMOKE_USER", "admin")
	pass := envOr("ADMINTABLE_SMOKE_PASSWORD", "admin")
	resource := envOr("ADMINTABLE_SMOKE_RESOURCE", "user")

	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatalf("cookie jar: %v", err)
	}
	client := &http.Client{Jar: jar, Timeout: 10 * time.Second}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if status, _ := fetch(ctx, client, http.MethodGet, base+"/healthz", nil); status != http.StatusOK {
		log.Fatalf("healthz: status %d", status)
	}

	status, body := fetch(ctx, client, http.MethodPost, base+"/login", url.Values{"username": {user}, "password": {pass}})
	if status != http.StatusOK || !strings.Contains(body, "Authentication Success") {
		log.Fatalf("login as %s failed: status %d", user, status)
	}

	status, body = fetch(ctx, client, http.MethodGet, base+"/resource/"+url.PathEscape(resource)+"/list", nil)
	if status != http.StatusOK {
		log.Fatalf("list %s: status %d", resource, status)
	}
	if !strings.Contains(body, "<table>") {
		log.Fatalf("list %s: no table rendered", resource)
	}

	if status, _ = fetch(ctx, client, http.MethodGet, base+"/logout", nil); status != http.StatusOK {
		log.Fatalf("logout: status %d", status)
	}

	fmt.Printf("✅ console smoke test passed: %s as %s, resource %s\n", base, user, resource)
}

// fetch follows redirects and returns the final status and body.
func fetch(ctx context.Context, client *http.Client, method, target string, form url.Values) (int, string) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		log.Fatalf("build %s %s: %v", method, target, err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, target, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read %s: %v", target, err)
	}
	return resp.StatusCode, string(data)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
