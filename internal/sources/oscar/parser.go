// Package oscar collects award-winning films year by year from a JSON
// endpoint whose available years are listed on an index page.
package oscar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/rpa-crawler/internal/crawler"
)

// ParseIndex returns the year ids of every .year-link anchor on the index.
func ParseIndex(body []byte) ([]int, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse index html: %w", err)
	}
	var years []int
	doc.Find("a.year-link").Each(func(_ int, s *goquery.Selection) {
		id, ok := s.Attr("id")
		if !ok {
			return
		}
		year, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return
		}
		years = append(years, year)
	})
	return years, nil
}

type film struct {
	Title       string `json:"title"`
	Year        *int   `json:"year"`
	Nominations int    `json:"nominations"`
	Awards      int    `json:"awards"`
	BestPicture bool   `json:"best_picture"`
}

// ParseFilms decodes the film list for year. Entries whose trimmed title is
// blank are dropped; a missing year falls back to the requested one.
func ParseFilms(year int, body []byte) ([]crawler.OscarFilm, error) {
	var films []film
	if err := json.Unmarshal(body, &films); err != nil {
		return nil, fmt.Errorf("decode films for %d: %w", year, err)
	}
	out := make([]crawler.OscarFilm, 0, len(films))
	for _, f := range films {
		title := strings.TrimSpace(f.Title)
		if title == "" {
			continue
		}
		y := year
		if f.Year != nil {
			y = *f.Year
		}
		out = append(out, crawler.OscarFilm{
			Title:       title,
			Year:        y,
			Nominations: f.Nominations,
			Awards:      f.Awards,
			BestPicture: f.BestPicture,
		})
	}
	return out, nil
}
