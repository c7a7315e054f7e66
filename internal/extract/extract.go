package extract

import (
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jakubczubak/iFlip/internal/config"
	"github.com/jakubczubak/iFlip/internal/types"
)

var (
	todayPattern      = regexp.MustCompile(`Dzisiaj o (\d{2}:\d{2})`)
	refreshedPattern  = regexp.MustCompile(`Odświeżono dnia (\d+ \p{L}+ \d{4})`)
	simpleDatePattern = regexp.MustCompile(`(\d+ \p{L}+ \d{4})$`)

	priceCleaner = regexp.MustCompile(`[^0-9,.]`)
)

// Genitive month names as they appear in listing dates.
var polishMonths = map[string]time.Month{
	"stycznia":     time.January,
	"lutego":       time.February,
	"marca":        time.March,
	"kwietnia":     time.April,
	"maja":         time.May,
	"czerwca":      time.June,
	"lipca":        time.July,
	"sierpnia":     time.August,
	"września":     time.September,
	"października": time.October,
	"listopada":    time.November,
	"grudnia":      time.December,
}

// Price sentinels the site shows instead of an amount.
var nonNumericPrices = map[string]bool{
	"zamienię":      true,
	"do negocjacji": true,
}

// Extractor maps one page's listing markup into Offers. It does no I/O and
// holds no state besides the ID sequence.
type Extractor struct {
	site   config.SiteConfig
	origin *url.URL
	seq    atomic.Int64
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Extractor bound to the site's selectors and origin.
func New(site config.SiteConfig, logger *slog.Logger) (*Extractor, error) {
	origin, err := url.Parse(site.Origin)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		site:   site,
		origin: origin,
		logger: logger.With("component", "extractor"),
		now:    time.Now,
	}, nil
}

// Page runs the extractor over every listing container in the document.
// Malformed listings are skipped; a page is never aborted because one
// listing failed to parse.
func (e *Extractor) Page(doc *goquery.Document, model, storage string) []*types.Offer {
	var offers []*types.Offer
	doc.Find(e.site.OfferSelector).Each(func(_ int, sel *goquery.Selection) {
		if offer, ok := e.Offer(sel, model, storage); ok {
			offers = append(offers, offer)
		}
	})
	return offers
}

// ContainerCount returns the number of listing containers on the page,
// valid or not. A page with zero containers marks the end of results.
func (e *Extractor) ContainerCount(doc *goquery.Document) int {
	return doc.Find(e.site.OfferSelector).Length()
}

// HasNextPage reports whether the pagination-forward control is present.
func (e *Extractor) HasNextPage(doc *goquery.Document) bool {
	return doc.Find(e.site.NextPageSelector).Length() > 0
}

// Offer parses a single listing container. The second return value is false
// when the listing is missing required data; that is expected, not an error.
func (e *Extractor) Offer(sel *goquery.Selection, model, storage string) (*types.Offer, bool) {
	title := strings.TrimSpace(sel.Find(e.site.TitleSelector).First().Text())
	if title == "" {
		return nil, false
	}

	price := ParsePrice(sel.Find(e.site.PriceSelector).First().Text())
	if price <= 0 {
		return nil, false
	}

	href, _ := sel.Find(e.site.LinkSelector).First().Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		e.logger.Debug("listing skipped, no link", "title", title)
		return nil, false
	}
	offerURL, ok := e.absoluteURL(href)
	if !ok {
		return nil, false
	}

	dateLoc := strings.TrimSpace(sel.Find(e.site.DateLocSelector).First().Text())
	location := ParseLocation(dateLoc)
	date, status, ok := e.parseDate(dateLoc)
	if !ok {
		e.logger.Debug("listing skipped, unparseable date", "title", title, "text", dateLoc)
		return nil, false
	}

	hasProtection := sel.Find(e.site.ProtectionSelector).Length() > 0

	return &types.Offer{
		ID:                   e.seq.Add(1),
		Title:                title,
		Price:                price,
		URL:                  offerURL,
		PostedDate:           date,
		DateStatus:           status,
		Location:             location,
		HasProtectionPackage: hasProtection,
		Model:                model,
		StorageCapacity:      storage,
	}, true
}

// absoluteURL rewrites relative listing links against the site origin.
func (e *Extractor) absoluteURL(href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return e.origin.ResolveReference(ref).String(), true
}

// ParsePrice turns the site's price text into a positive amount. Empty text,
// non-numeric sentinels ("zamienię", "do negocjacji") and anything that
// fails to parse all yield 0, meaning the listing is skipped.
func ParsePrice(text string) float64 {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == "" || nonNumericPrices[trimmed] {
		return 0
	}

	cleaned := priceCleaner.ReplaceAllString(text, "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return 0
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return price
}

// ParseLocation takes the city name from the combined date/location field:
// everything before the first comma of the segment left of the "-".
func ParseLocation(dateLoc string) string {
	if dateLoc == "" {
		return ""
	}
	left, _, _ := strings.Cut(dateLoc, "-")
	city, _, _ := strings.Cut(left, ",")
	return strings.TrimSpace(city)
}

// parseDate resolves the posting date from the combined date/location text.
// Patterns are tried in priority order: "today at HH:MM", "refreshed on
// D month YYYY", a trailing "D month YYYY", then whatever follows the last
// "-". Any failure skips the whole listing; the date is mandatory.
func (e *Extractor) parseDate(dateLoc string) (time.Time, types.DateStatus, bool) {
	if dateLoc == "" {
		return time.Time{}, types.DateStatusNone, false
	}

	if m := todayPattern.FindStringSubmatch(dateLoc); m != nil {
		if _, err := time.Parse("15:04", m[1]); err != nil {
			return time.Time{}, types.DateStatusNone, false
		}
		now := e.now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return today, types.DateStatusPostedToday, true
	}

	if m := refreshedPattern.FindStringSubmatch(dateLoc); m != nil {
		date, ok := parsePolishDate(m[1])
		return date, types.DateStatusRefreshed, ok
	}

	if m := simpleDatePattern.FindStringSubmatch(dateLoc); m != nil {
		date, ok := parsePolishDate(m[1])
		return date, types.DateStatusNone, ok
	}

	if idx := strings.LastIndex(dateLoc, "-"); idx >= 0 {
		tail := strings.TrimSpace(dateLoc[idx+1:])
		tail = strings.TrimSpace(strings.TrimPrefix(tail, "Odświeżono dnia"))
		if date, ok := parsePolishDate(tail); ok {
			return date, types.DateStatusNone, true
		}
	}

	return time.Time{}, types.DateStatusNone, false
}

// parsePolishDate parses "2 stycznia 2025" style dates.
func parsePolishDate(text string) (time.Time, bool) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(fields[0])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}
	month, ok := polishMonths[strings.ToLower(fields[1])]
	if !ok {
		return time.Time{}, false
	}
	year, err := strconv.Atoi(fields[2])
	if err != nil {
		return time.Time{}, false
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
}
