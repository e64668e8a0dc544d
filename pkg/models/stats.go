package models

type RankedEntry struct {
	AnimeID         int64  `json:"anime_id"`
	Title           string `json:"title"`
	Status          string `json:"status"`
	Score           *int   `json:"score"`
	EpisodesWatched int    `json:"episodes_watched"`
}

type UserStats struct {
	AverageScore         *float64      `json:"average_score"`
	TotalWatchedEpisodes int           `json:"total_watched_episodes"`
	TotalCompleted       int           `json:"total_completed"`
	PersonalRanking      []RankedEntry `json:"personal_ranking"`
}

type AnimeMetric struct {
	AnimeID int64    `json:"anime_id"`
	Title   string   `json:"title"`
	Value   *float64 `json:"value"`
}

type GlobalStats struct {
	AverageScores []AnimeMetric `json:"average_scores"`
	MostWatched   *AnimeMetric  `json:"most_watched"`
	BestRated     *AnimeMetric  `json:"best_rated"`
}
