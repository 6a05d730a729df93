package catalog

import (
	"strconv"
	"strings"

	"github.com/JakeFAU/catalog-importer/internal/tmdb"
)

const (
	// DefaultImageBaseURL serves w500 renditions.
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"
	// DefaultCastLimit is how many billed names are kept.
	DefaultCastLimit = 5

	jobDirector = "Director"
)

// BuildOptions tunes Build.
type BuildOptions struct {
	ImageBaseURL string
	CastLimit    int
}

// Build combines a discovery result with its enrichment payloads.
// Zero-value details or credits yield null duration/imdb/director and an empty cast.
func Build(summary tmdb.MovieSummary, details tmdb.MovieDetails, credits tmdb.Credits, opts BuildOptions) Item {
	if opts.ImageBaseURL == "" {
		opts.ImageBaseURL = DefaultImageBaseURL
	}
	if opts.CastLimit <= 0 {
		opts.CastLimit = DefaultCastLimit
	}
	return Item{
		ContentID:   summary.ID,
		Title:       summary.Title,
		Type:        TypeMovie,
		ReleaseYear: ParseReleaseYear(summary.ReleaseDate),
		Description: summary.Overview,
		Language:    summary.OriginalLanguage,
		Duration:    details.Runtime,
		Thumbnail:   ImageURL(opts.ImageBaseURL, summary.BackdropPath),
		Poster:      ImageURL(opts.ImageBaseURL, summary.PosterPath),
		IMDbID:      optionalString(details.IMDbID),
		Director:    Director(credits),
		Cast:        TopCast(credits, opts.CastLimit),
	}
}

// ParseReleaseYear reads the leading four digits of a YYYY-MM-DD date.
func ParseReleaseYear(date string) *int {
	date = strings.TrimSpace(date)
	if len(date) < 4 {
		return nil
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil || year <= 0 {
		return nil
	}
	return &year
}

// ImageURL joins a path fragment onto the image base, or returns nil for an empty path.
func ImageURL(base, path string) *string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := strings.TrimRight(base, "/") + path
	return &u
}

// Director returns the first crew member credited as Director, in API order.
func Director(credits tmdb.Credits) *string {
	for _, member := range credits.Crew {
		if member.Job == jobDirector {
			return optionalString(member.Name)
		}
	}
	return nil
}

// TopCast joins the first limit cast names with ", ".
func TopCast(credits tmdb.Credits, limit int) string {
	if limit <= 0 || len(credits.Cast) == 0 {
		return ""
	}
	n := min(limit, len(credits.Cast))
	names := make([]string, 0, n)
	for _, member := range credits.Cast[:n] {
		names = append(names, member.Name)
	}
	return strings.Join(names, ", ")
}

func optionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
