package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

const probeTimeout = 2 * time.Second

type chromedpSession struct {
	tab         context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	timeout     time.Duration
}

func openChromedp(ctx context.Context, opts Options) (*chromedpSession, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.DriverPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.DriverPath))
	}

	// The session outlives the caller's context; Close releases it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tab, tabCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and must not carry a deadline.
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tab)
	stop()
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, &SessionError{Backend: "chromedp", Op: "start", Err: err}
	}

	return &chromedpSession{
		tab:         tab,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		timeout:     opts.Timeout,
	}, nil
}

func (s *chromedpSession) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.tab.Err() != nil || !s.alive() {
		return &SessionError{Backend: "chromedp", Op: op, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *chromedpSession) alive() bool {
	ctx, cancel := context.WithTimeout(s.tab, probeTimeout)
	defer cancel()
	var n int
	return chromedp.Run(ctx, chromedp.Evaluate(`1`, &n)) == nil
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate", s.timeout, chromedp.Navigate(url))
}

func (s *chromedpSession) FindAll(ctx context.Context, xpath string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, "find", s.timeout, chromedp.Nodes(xpath, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, err
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &chromedpElement{s: s, node: n})
	}
	return out, nil
}

func (s *chromedpSession) Find(ctx context.Context, xpath string) (Element, error) {
	return first(s.FindAll(ctx, xpath))
}

func (s *chromedpSession) WaitFor(ctx context.Context, xpath string, timeout time.Duration) error {
	err := s.run(ctx, "wait", timeout, chromedp.WaitReady(xpath, chromedp.BySearch))
	var sessErr *SessionError
	if err != nil && !errors.As(err, &sessErr) && ctx.Err() == nil {
		return fmt.Errorf("wait for %s: %w", xpath, ErrNotFound)
	}
	return err
}

func (s *chromedpSession) Source(ctx context.Context) (string, error) {
	var html string
	err := s.run(ctx, "source", s.timeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (s *chromedpSession) Close() error {
	err := chromedp.Cancel(s.tab)
	s.tabCancel()
	s.allocCancel()
	return err
}

type chromedpElement struct {
	s    *chromedpSession
	node *cdp.Node
}

func (e *chromedpElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.s.run(ctx, "text", e.s.timeout, chromedp.Text([]cdp.NodeID{e.node.NodeID}, &text, chromedp.ByNodeID))
	return strings.TrimSpace(text), err
}

func (e *chromedpElement) Attr(_ context.Context, name string) (string, error) {
	return e.node.AttributeValue(name), nil
}

func (e *chromedpElement) Click(ctx context.Context) error {
	return e.s.run(ctx, "click", e.s.timeout, chromedp.Click([]cdp.NodeID{e.node.NodeID}, chromedp.ByNodeID))
}
