package scraper

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"platinmods-tracker/pkg/tracker"
)

// threadIDRegex extracts the numeric thread id from a XenForo thread URL
// like /threads/some-title.123456/ or /threads/123456/.
var threadIDRegex = regexp.MustCompile(`/threads/(?:[^/]*?\.)?(\d+)/?`)

// parseMemberPage determines whether a member is currently online. XenForo
// profile pages carry an "Online now" banner; some themes only expose the
// status inside the userTitle span.
func parseMemberPage(doc *goquery.Document, pageURL string) (bool, error) {
	header := doc.Find(".memberHeader")
	if header.Length() == 0 {
		return false, &ExtractError{URL: pageURL, Reason: "member profile structure not found"}
	}

	online := false
	header.Find(".userBanner, .userTitle, .memberHeader-banners span").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := strings.TrimSpace(sel.Text())
		if strings.Contains(text, "Online now") || strings.Contains(text, "Online") {
			online = true
			return false
		}
		return true
	})

	return online, nil
}

// parseForumPage extracts the thread refs listed on a forum page.
func parseForumPage(doc *goquery.Document, pageURL string) ([]tracker.ThreadRef, error) {
	links := doc.Find(".structItem-title a")
	if links.Length() == 0 {
		return nil, &ExtractError{URL: pageURL, Reason: "thread list structure not found"}
	}

	base := siteBase(pageURL)
	seen := make(map[string]struct{})
	var threads []tracker.ThreadRef

	links.Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !strings.Contains(href, "/threads/") {
			return
		}

		match := threadIDRegex.FindStringSubmatch(href)
		if match == nil {
			return
		}
		id := match[1]

		// Listing rows repeat the thread link (label + title); keep the
		// first occurrence with a non-empty title.
		if _, dup := seen[id]; dup {
			return
		}

		title := strings.TrimSpace(sel.Text())
		if title == "" {
			return
		}
		seen[id] = struct{}{}

		threadURL := href
		if strings.HasPrefix(href, "/") {
			threadURL = base + href
		}

		threads = append(threads, tracker.ThreadRef{
			ID:    id,
			Title: title,
			URL:   threadURL,
		})
	})

	if len(threads) == 0 {
		return nil, &ExtractError{URL: pageURL, Reason: "no thread links found in listing"}
	}

	return threads, nil
}

// siteBase returns the scheme://host prefix of a page URL for resolving
// relative thread links.
func siteBase(pageURL string) string {
	idx := strings.Index(pageURL, "://")
	if idx < 0 {
		return ""
	}
	rest := pageURL[idx+len("://"):]
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return pageURL
	}
	return pageURL[:idx+len("://")+slash]
}
