package database

// ArticleSource is the read surface the annotation and dataset stages
// depend on.
type ArticleSource interface {
	GetFilteredArticles(limit, offset int) ([]Article, error)
	GetArticlesByIDs(ids []int64) ([]Article, error)
	CountFilteredArticles() (int, error)
}

// EventSink persists validated annotations.
type EventSink interface {
	StoreEvents(table string, events []Event) error
	CountEvents(table string) (int, error)
}
