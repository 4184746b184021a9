package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"pkai/internal/protocol"
)

const (
	defaultExternalSource = "default"
	maxFetchBytes         = 2 << 20
	maxExternalChars      = 4000
	fetchTimeout          = 20 * time.Second
)

// ExternalUpdates implements fetch_external_updates. URL sources are fetched
// and converted to Markdown; other sources have no live feed.
type ExternalUpdates struct {
	httpClient *http.Client
	converter  *md.Converter
}

func NewExternalUpdates(httpClient *http.Client) *ExternalUpdates {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	return &ExternalUpdates{
		httpClient: httpClient,
		converter:  md.NewConverter("", true, nil),
	}
}

func (t *ExternalUpdates) Name() string { return protocol.ToolNameFetchExternal }

func (t *ExternalUpdates) Description() string {
	return "Fetch the latest updates from an external source. Use only when the user asks for recent or external information not in the knowledge base. Pass an http(s) URL as source to read a web page."
}

func (t *ExternalUpdates) Parameters() map[string]any {
	return schema(nil, map[string]any{
		"source": prop("string", "Source name or http(s) URL (default \"default\")"),
	})
}

func (t *ExternalUpdates) Invoke(ctx context.Context, args map[string]any) (string, error) {
	source := stringArg(args, "source")
	if source == "" {
		source = defaultExternalSource
	}
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Sprintf("[External] No live updates configured for source '%s'. This is a placeholder; integrate RSS or APIs as needed.", source), nil
	}
	return t.fetch(ctx, u.String()), nil
}

func (t *ExternalUpdates) fetch(ctx context.Context, target string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "Error: " + err.Error()
	}
	req.Header.Set("User-Agent", "pkai/0.1")
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "Error: fetching " + target + ": " + err.Error()
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Sprintf("Error: fetching %s: HTTP %d", target, resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxFetchBytes)
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "html") {
		raw, err := io.ReadAll(body)
		if err != nil {
			return "Error: reading " + target + ": " + err.Error()
		}
		return formatExternal(target, "", string(raw))
	}

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "Error: parsing " + target + ": " + err.Error()
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, nav, footer, iframe").Remove()

	selection := doc.Find("main").First()
	if selection.Length() == 0 {
		selection = doc.Find("body").First()
	}
	if selection.Length() == 0 {
		selection = doc.Selection
	}
	return formatExternal(target, title, t.converter.Convert(selection))
}

func formatExternal(target, title, body string) string {
	var b strings.Builder
	b.WriteString("[External] ")
	if title != "" {
		b.WriteString(title)
		b.WriteString(" (")
		b.WriteString(target)
		b.WriteString(")")
	} else {
		b.WriteString(target)
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(body))

	out := b.String()
	if r := []rune(out); len(r) > maxExternalChars {
		out = string(r[:maxExternalChars]) + "\n[truncated]"
	}
	return out
}
