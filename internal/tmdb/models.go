// Package tmdb is a small client for the three TMDB v3 endpoints the importer uses:
// movie discovery, movie details and movie credits.
package tmdb

// DiscoverQuery selects one page of the discovery listing.
type DiscoverQuery struct {
	Year     int
	Language string
	Region   string
	Page     int
}

// DiscoverResponse is one page of /discover/movie.
type DiscoverResponse struct {
	Page         int            `json:"page"`
	Results      []MovieSummary `json:"results"`
	TotalPages   int            `json:"total_pages"`
	TotalResults int            `json:"total_results"`
}

// MovieSummary is a discovery result.
type MovieSummary struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	OriginalTitle    string  `json:"original_title"`
	Overview         string  `json:"overview"`
	OriginalLanguage string  `json:"original_language"`
	ReleaseDate      string  `json:"release_date"`
	PosterPath       string  `json:"poster_path"`
	BackdropPath     string  `json:"backdrop_path"`
	Popularity       float64 `json:"popularity"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	GenreIDs         []int   `json:"genre_ids"`
}

// MovieDetails carries the fields of /movie/{id} the importer reads.
// Runtime is nil when the API omits it or returns null.
type MovieDetails struct {
	ID      int64  `json:"id"`
	IMDbID  string `json:"imdb_id"`
	Runtime *int   `json:"runtime"`
	Status  string `json:"status"`
	Tagline string `json:"tagline"`
}

// Credits is the /movie/{id}/credits payload.
type Credits struct {
	ID   int64        `json:"id"`
	Cast []CastMember `json:"cast"`
	Crew []CrewMember `json:"crew"`
}

// CastMember is one billed performer, in API order.
type CastMember struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Character string `json:"character"`
	Order     int    `json:"order"`
}

// CrewMember is one crew credit.
type CrewMember struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Job        string `json:"job"`
	Department string `json:"department"`
}
