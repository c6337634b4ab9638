// Package parser turns the camera's preview page into video records.
package parser

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/validation"
)

// DeleteField names both the listing's delete button and the form field the
// camera expects on a delete request.
const DeleteField = "delete1"

const entrySelector = "fieldset.fileicon"

var (
	sizeRegex     = regexp.MustCompile(`(\d+ MB)`)
	durationRegex = regexp.MustCompile(`(\d+s)`)
	dateRegex     = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	timeRegex     = regexp.MustCompile(`(\d{2}:\d{2}:\d{2})`)
)

// Details holds the descriptive tokens found in a listing entry's text.
// Missing tokens are empty strings.
type Details struct {
	Size     string
	Duration string
	Date     string
	Time     string
}

// Title is "<date> <time>", or models.UnknownDateTime when either is missing.
func (d Details) Title() string {
	if d.Date == "" || d.Time == "" {
		return models.UnknownDateTime
	}
	return d.Date + " " + d.Time
}

// ExtractDetails pulls size, duration, date and time tokens out of free text.
// It never fails; unmatched tokens are left empty.
func ExtractDetails(text string) Details {
	return Details{
		Size:     firstMatch(sizeRegex, text),
		Duration: firstMatch(durationRegex, text),
		Date:     firstMatch(dateRegex, text),
		Time:     firstMatch(timeRegex, text),
	}
}

func firstMatch(re *regexp.Regexp, text string) string {
	if m := re.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

// BuildRecord assembles a record from one entry's link, delete handle and
// text. ok is false when href is not a media-folder mp4 path.
func BuildRecord(href, handle, text string) (rec models.VideoRecord, ok bool) {
	if !validation.IsValidAssetPath(href) {
		return models.VideoRecord{}, false
	}

	d := ExtractDetails(text)
	return models.VideoRecord{
		AssetPath:    href,
		ServerHandle: handle,
		Title:        d.Title(),
		Size:         d.Size,
		Duration:     d.Duration,
		Date:         d.Date,
		Time:         d.Time,
	}, true
}

// ParseListing reads a preview page and returns one record per valid entry,
// in page order. Entries without a media link are skipped silently; an error
// is returned only when the document itself cannot be read.
func ParseListing(r io.Reader) ([]models.VideoRecord, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse preview page: %w", err)
	}

	records := make([]models.VideoRecord, 0)
	doc.Find(entrySelector).Each(func(_ int, entry *goquery.Selection) {
		href, _ := entry.Find("a[href]").First().Attr("href")
		handle, _ := entry.Find(`button[name="` + DeleteField + `"]`).First().Attr("value")

		if rec, ok := BuildRecord(href, handle, entryText(entry)); ok {
			records = append(records, rec)
		}
	})

	return records, nil
}

// entryText joins every non-blank text node under the entry with single
// spaces, so tokens split across elements stay separated.
func entryText(s *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range s.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
