// Package browser runs the autonomous verification agent: a rod-driven
// Chrome session steered action by action by the LLM until it either
// extracts the program's eligibility facts or gives up. The supervisor
// owns the full session lifecycle; a run never leaks a browser process
// regardless of how it ends.
package browser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"polistep/internal/config"
	"polistep/internal/logging"
)

// NormalizeEntryURL adds a scheme when missing and rejects URLs without
// a usable host.
func NormalizeEntryURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("entry URL is empty")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("malformed entry URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("entry URL has no host")
	}
	return u.String(), nil
}

// launchBrowser starts Chrome and connects. A failed launch gets one
// retry in constrained mode (headless, no sandbox) before giving up.
func launchBrowser(cfg config.BrowserConfig) (*rod.Browser, error) {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		logging.BrowserWarn("launch failed, retrying constrained: %v", err)
		fallback := launcher.New().Headless(true).NoSandbox(true)
		if cfg.BinPath != "" {
			fallback = fallback.Bin(cfg.BinPath)
		}
		controlURL, err = fallback.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return browser, nil
}

// openPage creates an incognito page at the entry URL with the
// configured viewport, routing downloads into downloadDir.
func openPage(browser *rod.Browser, cfg config.BrowserConfig, entryURL, downloadDir string) (*rod.Page, error) {
	incognito, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: entryURL})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             cfg.GetViewportWidth(),
		Height:            cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		logging.BrowserWarn("viewport override: %v", err)
	}

	if downloadDir != "" {
		if err := (proto.BrowserSetDownloadBehavior{
			Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
			DownloadPath: downloadDir,
		}).Call(page); err != nil {
			logging.BrowserWarn("download behavior: %v", err)
		}
	}

	if err := page.Timeout(cfg.NavigationTimeout()).WaitLoad(); err != nil {
		logging.BrowserWarn("initial load: %v", err)
	}
	return page, nil
}

// domainAllowed reports whether a navigation target stays inside the
// allowlist. An empty allowlist permits everything.
func domainAllowed(allowed []string, target string) bool {
	if len(allowed) == 0 {
		return true
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range allowed {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
