package browser

import (
	"context"
	"os"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultUserAgent is a desktop Chrome UA string.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// RodConfig configures Chromium launches.
type RodConfig struct {
	BinPath        string
	Headless       bool
	NoSandbox      bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
}

// DefaultRodConfig returns headless settings with a 1366x768 viewport.
func DefaultRodConfig() RodConfig {
	return RodConfig{
		Headless:       true,
		NoSandbox:      true,
		ViewportWidth:  1366,
		ViewportHeight: 768,
		UserAgent:      DefaultUserAgent,
	}
}

// RodLauncher launches a dedicated Chromium process per session.
type RodLauncher struct {
	cfg RodConfig
}

// NewRodLauncher creates a launcher, filling zero values from DefaultRodConfig.
func NewRodLauncher(cfg RodConfig) *RodLauncher {
	def := DefaultRodConfig()
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = def.ViewportWidth
	}
	if cfg.ViewportHeight <= 0 {
		cfg.ViewportHeight = def.ViewportHeight
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	return &RodLauncher{cfg: cfg}
}

// Open launches Chromium and connects to it over CDP.
func (l *RodLauncher) Open(ctx context.Context) (Session, error) {
	lc := launcher.New().
		Context(ctx).
		Headless(l.cfg.Headless).
		NoSandbox(l.cfg.NoSandbox)

	if l.cfg.BinPath != "" {
		if _, err := os.Stat(l.cfg.BinPath); err == nil {
			lc = lc.Bin(l.cfg.BinPath)
		} else {
			zap.L().Warn("browser: configured binary not found, using auto-detected chromium",
				zap.String("bin_path", l.cfg.BinPath))
		}
	}

	controlURL, err := lc.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch chromium")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		lc.Kill()
		return nil, eris.Wrap(err, "browser: connect")
	}

	zap.L().Debug("browser: session opened", zap.String("control_url", controlURL))
	return &rodSession{browser: b, launcher: lc, cfg: l.cfg}, nil
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      RodConfig
}

func (s *rodSession) NewPage(ctx context.Context) (Page, error) {
	p, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, eris.Wrap(err, "browser: create page")
	}
	// Detach the page from the creation context; navigation binds its own.
	p = p.Context(context.Background())

	if err := p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = p.Close()
		return nil, eris.Wrap(err, "browser: set viewport")
	}
	if err := p.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: s.cfg.UserAgent}); err != nil {
		_ = p.Close()
		return nil, eris.Wrap(err, "browser: set user agent")
	}
	return &rodPage{page: p}, nil
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	if err != nil {
		return eris.Wrap(err, "browser: close")
	}
	return nil
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Close() error {
	return p.page.Close()
}
