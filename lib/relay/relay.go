// Package relay describes a reverse-proxy relay (cf-proxy-ex and similar)
// that outbound navigation can be routed through. The relay expects the
// upstream url appended to its own address and an access token cookie
// scoped to its host.
package relay

import (
	"net/url"
	"os"
	"strings"

	"feedroutes/lib/browser"
)

const TokenCookieName = "__PROXY_PWD__"

type Config struct {
	// Base is the relay address, for example "https://relay.example.workers.dev/".
	Base  string `json:"base"`
	Token string `json:"token"`
}

// WithEnv overrides the config with CLOUDFLARE_PROXY_ADDR and
// CLOUDFLARE_PROXY_PWD when they are set.
func (c Config) WithEnv() Config {
	if base := os.Getenv("CLOUDFLARE_PROXY_ADDR"); base != "" {
		c.Base = base
	}
	if token := os.Getenv("CLOUDFLARE_PROXY_PWD"); token != "" {
		c.Token = token
	}
	return c
}

func (c Config) Enabled() bool {
	return c.Base != ""
}

// Wrap returns the address navigation should go to for target.
func (c Config) Wrap(target string) string {
	if !c.Enabled() {
		return target
	}
	return c.Base + target
}

// Strip removes the relay prefix the relay adds to links in the pages it
// serves.
func (c Config) Strip(href string) string {
	if !c.Enabled() {
		return href
	}
	return strings.TrimPrefix(href, c.Base)
}

func (c Config) Host() string {
	u, err := url.Parse(c.Base)
	if err == nil && u.Host != "" {
		return u.Hostname()
	}
	host := strings.TrimPrefix(c.Base, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}

// Cookie is the access token cookie, ok is false unless both an address
// and a token are configured.
func (c Config) Cookie() (browser.Cookie, bool) {
	if !c.Enabled() || c.Token == "" {
		return browser.Cookie{}, false
	}
	return browser.Cookie{
		Name:   TokenCookieName,
		Value:  c.Token,
		Domain: c.Host(),
		Path:   "/",
	}, true
}
