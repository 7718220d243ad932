package crawler

import (
	"context"

	"github.com/chromedp/chromedp"
)

// renderFunc fetches a page through a JavaScript-capable renderer. Swappable
// in tests.
type renderFunc func(ctx context.Context, pageURL string) (string, error)

// renderWithBrowser navigates a headless browser to the page, waits for
// client-side rendering to settle, and returns the resulting document. Single
// page applications expose most of their navigation only after this step.
func (c *Crawler) renderWithBrowser(ctx context.Context, pageURL string) (string, error) {
	browserCtx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var rendered string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(c.cfg.JSWait),
		chromedp.OuterHTML("html", &rendered),
	)
	if err != nil {
		return "", err
	}
	return rendered, nil
}
