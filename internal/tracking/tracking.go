// Package tracking turns raw request facts (IP, referrer, user agent) into
// the privacy-preserving categories stored on analytics events.
//
// Everything here is a pure function: no I/O, no clock. That keeps the
// classification rules unit-testable and lets the service layer decide
// when and whether to record anything.
package tracking

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/sakif/linkbio/internal/model"
)

// ClientKeyLength is the number of hex characters kept from the digest.
const ClientKeyLength = 16

// ClientKey derives a stable visitor key from an IP address and a
// server-side salt. The raw IP is never persisted; without the salt the
// key cannot be reversed by brute-forcing the IPv4 space.
func ClientKey(ip, salt string) string {
	sum := sha256.Sum256([]byte(ip + salt))
	return hex.EncodeToString(sum[:])[:ClientKeyLength]
}

var socialDomains = []string{
	"facebook.com", "fb.com", "instagram.com", "twitter.com", "x.com", "t.co",
	"linkedin.com", "lnkd.in", "tiktok.com", "youtube.com", "youtu.be",
	"reddit.com", "pinterest.com", "snapchat.com", "threads.net",
	"discord.com", "twitch.tv", "tumblr.com", "whatsapp.com", "telegram.org",
	"t.me", "bsky.app", "mastodon.social",
}

var searchEngines = map[string]bool{
	"google": true, "bing": true, "yahoo": true, "duckduckgo": true,
	"baidu": true, "yandex": true, "ecosia": true, "ask": true, "brave": true,
}

// ClassifyReferrer buckets a referrer URL.
//
//	""                        → direct
//	host is a social network  → social (the domain or a subdomain of it)
//	host is a search engine   → search
//
// Social matching is by domain suffix, so facebook.com.evil.org is other.
//	anything else, malformed  → other
func ClassifyReferrer(referrer string) model.ReferrerCategory {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return model.ReferrerDirect
	}
	if !strings.Contains(referrer, "://") {
		referrer = "https://" + referrer
	}
	u, err := url.Parse(referrer)
	if err != nil {
		return model.ReferrerOther
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if host == "" {
		return model.ReferrerOther
	}

	for _, d := range socialDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return model.ReferrerSocial
		}
	}

	// google.com, google.co.uk, search.yahoo.co.jp: any label but the last
	labels := strings.Split(host, ".")
	for _, l := range labels[:len(labels)-1] {
		if searchEngines[l] {
			return model.ReferrerSearch
		}
	}

	return model.ReferrerOther
}

var tabletKeywords = []string{"ipad", "tablet", "kindle", "silk", "playbook"}

var mobileKeywords = []string{
	"mobile", "iphone", "ipod", "android", "blackberry", "opera mini",
	"iemobile", "windows phone", "webos",
}

// ClassifyDevice buckets a User-Agent string. Only a tablet keyword makes a
// tablet; any other mobile keyword, Android included, is mobile.
func ClassifyDevice(userAgent string) model.DeviceCategory {
	ua := strings.ToLower(strings.TrimSpace(userAgent))
	if ua == "" {
		return model.DeviceUnknown
	}

	if containsAny(ua, tabletKeywords) {
		return model.DeviceTablet
	}
	if containsAny(ua, mobileKeywords) {
		return model.DeviceMobile
	}
	return model.DeviceDesktop
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// countryHeaders are set by the CDN in front of the app, most specific first.
var countryHeaders = []string{"CF-IPCountry", "X-Vercel-IP-Country", "X-Country-Code"}

// HeaderGetter is satisfied by http.Header.
type HeaderGetter interface {
	Get(key string) string
}

// Country returns the two-letter ISO country code the edge attached to the
// request, or "" when none is present. Cloudflare's "XX" (unknown) and "T1"
// (Tor) are treated as absent.
func Country(h HeaderGetter) string {
	for _, name := range countryHeaders {
		c := strings.ToUpper(strings.TrimSpace(h.Get(name)))
		if len(c) == 2 && c != "XX" && c != "T1" {
			return c
		}
	}
	return ""
}
