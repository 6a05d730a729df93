// Package catalog defines the record written to the destination table and the
// transform that builds it from catalog API payloads.
package catalog

// TypeMovie is the fixed type tag stored for every imported record.
const TypeMovie = "Movie"

// Item is one row of the destination table. ContentID is the natural key.
type Item struct {
	ContentID   int64  `db:"content_id"`
	Title       string `db:"title"`
	Type        string `db:"type"`
	ReleaseYear *int   `db:"release_year"`
	Description string `db:"description"`
	Language    string `db:"language"`
	// Duration is the runtime in minutes.
	Duration  *int    `db:"duration"`
	Thumbnail *string `db:"thumbnail"`
	Poster    *string `db:"Poster_img"`
	IMDbID    *string `db:"imdb_id"`
	Director  *string `db:"director"`
	// Cast is the comma-joined top billed names; empty when unknown.
	Cast string `db:"cast"`
}

// Columns lists the destination columns in bind order. They match the db tags on Item.
var Columns = []string{
	"content_id",
	"title",
	"type",
	"release_year",
	"description",
	"language",
	"duration",
	"thumbnail",
	"Poster_img",
	"imdb_id",
	"director",
	"cast",
}

// Args returns the bind arguments matching Columns.
func (it Item) Args() []any {
	return []any{
		it.ContentID,
		it.Title,
		it.Type,
		it.ReleaseYear,
		it.Description,
		it.Language,
		it.Duration,
		it.Thumbnail,
		it.Poster,
		it.IMDbID,
		it.Director,
		it.Cast,
	}
}
