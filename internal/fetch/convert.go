package fetch

import (
	"fmt"
	"net/url"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/MrSnakeDoc/folio/internal/logger"
)

// boilerplate is removed before conversion when readability is off or finds nothing.
const boilerplate = "script, style, noscript, template, iframe, nav, header, footer, aside, form"

type page struct {
	title    string
	markdown string
}

// convertHTML turns an HTML document into Markdown. Relative links are
// resolved against pageURL.
func (f *Fetcher) convertHTML(body []byte, contentType, pageURL string) (*page, error) {
	documentHTML, err := decodeUTF8(body, contentType)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(documentHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := extractPageTitle(doc)
	content := ""
	if f.opts.Readability {
		articleTitle, articleHTML := f.extractArticle(documentHTML, pageURL)
		if articleTitle != "" {
			title = articleTitle
		}
		content = articleHTML
	}
	if content == "" {
		content, err = extractBodyHTML(doc)
		if err != nil {
			return nil, err
		}
	}

	var opts []converter.ConvertOptionFunc
	if domain := origin(pageURL); domain != "" {
		opts = append(opts, converter.WithDomain(domain))
	}
	md, err := htmltomarkdown.ConvertString(content, opts...)
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	return &page{title: title, markdown: md}, nil
}

// extractArticle runs readability on the document. It returns empty strings
// when nothing useful comes out, so the caller falls back to the full body.
func (f *Fetcher) extractArticle(documentHTML, pageURL string) (title, articleHTML string) {
	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", ""
	}

	article, err := readability.FromReader(strings.NewReader(documentHTML), parsedURL)
	if err != nil {
		f.log.Debug("Readability extraction failed", logger.String("url", pageURL), logger.Error(err))
		return "", ""
	}
	if strings.TrimSpace(article.TextContent) == "" {
		return "", ""
	}
	return strings.TrimSpace(article.Title), strings.TrimSpace(article.Content)
}

// extractPageTitle prefers <title>, then og:title.
func extractPageTitle(doc *goquery.Document) string {
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists {
		return strings.TrimSpace(ogTitle)
	}
	return ""
}

func extractBodyHTML(doc *goquery.Document) (string, error) {
	doc.Find(boilerplate).Remove()

	sel := doc.Find("main, article").First()
	if sel.Length() == 0 {
		sel = doc.Find("body")
	}
	html, err := sel.Html()
	if err != nil {
		return "", fmt.Errorf("render body: %w", err)
	}
	return html, nil
}

func origin(pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
