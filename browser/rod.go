package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
}

func openRod(ctx context.Context, opts Options) (*rodSession, error) {
	l := launcher.New().
		Headless(opts.Headless).
		Set("disable-dev-shm-usage")
	if opts.DriverPath != "" {
		l = l.Bin(opts.DriverPath)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, &SessionError{Backend: "rod", Op: "launch", Err: err}
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, &SessionError{Backend: "rod", Op: "connect", Err: err}
	}

	page, err := stealth.Page(browser)
	if err != nil {
		browser.Close()
		l.Kill()
		return nil, &SessionError{Backend: "rod", Op: "page", Err: err}
	}
	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			browser.Close()
			l.Kill()
			return nil, &SessionError{Backend: "rod", Op: "user agent", Err: err}
		}
	}

	return &rodSession{launcher: l, browser: browser, page: page, timeout: opts.Timeout}, nil
}

func (s *rodSession) scoped(ctx context.Context, timeout time.Duration) *rod.Page {
	return s.page.Context(ctx).Timeout(timeout)
}

func (s *rodSession) wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !s.alive() {
		return &SessionError{Backend: "rod", Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *rodSession) alive() bool {
	p := s.page.Timeout(probeTimeout)
	defer p.CancelTimeout()
	_, err := p.Eval(`() => 1`)
	return err == nil
}

func (s *rodSession) Navigate(ctx context.Context, url string) error {
	p := s.scoped(ctx, s.timeout)
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return s.wrap(ctx, "navigate", err)
	}
	return s.wrap(ctx, "navigate", p.WaitLoad())
}

func (s *rodSession) FindAll(ctx context.Context, xpath string) ([]Element, error) {
	p := s.scoped(ctx, s.timeout)
	defer p.CancelTimeout()
	elems, err := p.ElementsX(xpath)
	if err != nil {
		return nil, s.wrap(ctx, "find", err)
	}
	out := make([]Element, 0, len(elems))
	for _, el := range elems {
		out = append(out, &rodElement{s: s, el: el})
	}
	return out, nil
}

func (s *rodSession) Find(ctx context.Context, xpath string) (Element, error) {
	return first(s.FindAll(ctx, xpath))
}

func (s *rodSession) WaitFor(ctx context.Context, xpath string, timeout time.Duration) error {
	p := s.scoped(ctx, timeout)
	defer p.CancelTimeout()
	_, err := p.ElementX(xpath)
	if err == nil {
		return nil
	}
	wrapped := s.wrap(ctx, "wait", err)
	var sessErr *SessionError
	if errors.As(wrapped, &sessErr) || ctx.Err() != nil {
		return wrapped
	}
	return fmt.Errorf("wait for %s: %w", xpath, ErrNotFound)
}

func (s *rodSession) Source(ctx context.Context) (string, error) {
	p := s.scoped(ctx, s.timeout)
	defer p.CancelTimeout()
	html, err := p.HTML()
	return html, s.wrap(ctx, "source", err)
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	return err
}

type rodElement struct {
	s  *rodSession
	el *rod.Element
}

func (e *rodElement) scoped(ctx context.Context) *rod.Element {
	return e.el.Context(ctx).Timeout(e.s.timeout)
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	el := e.scoped(ctx)
	defer el.CancelTimeout()
	text, err := el.Text()
	return strings.TrimSpace(text), e.s.wrap(ctx, "text", err)
}

func (e *rodElement) Attr(ctx context.Context, name string) (string, error) {
	el := e.scoped(ctx)
	defer el.CancelTimeout()
	v, err := el.Attribute(name)
	if err != nil {
		return "", e.s.wrap(ctx, "attr", err)
	}
	if v == nil {
		return "", nil
	}
	return *v, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	el := e.scoped(ctx)
	defer el.CancelTimeout()
	return e.s.wrap(ctx, "click", el.Click(proto.InputMouseButtonLeft, 1))
}
