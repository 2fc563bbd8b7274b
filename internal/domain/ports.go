package domain

import (
	"context"
	"time"
)

type VoteLedger interface {
	Append(ctx context.Context, vote Vote) error
	MostRecentVote(ctx context.Context, userID UserID) (Vote, error)
	AllVotes(ctx context.Context) ([]Vote, error)
	CountByCountry(ctx context.Context) (map[string]int64, error)
	Compact(ctx context.Context, before time.Time) (int64, error)
}

type ChatLog interface {
	Append(ctx context.Context, msg ChatMessage) (ChatMessage, error)
	History(ctx context.Context, room RoomKey) ([]ChatMessage, error)
}

type CountryCatalog interface {
	Exists(country string) bool
	List() []string
}

type Antifraude interface {
	Permitir(ctx context.Context, userID UserID) error
}

type Clock interface {
	Now() time.Time
}

// TallyPublisher é o lado do hub usado por quem precisa empurrar parciais.
type TallyPublisher interface {
	PublishTally(tallies []CountryTally)
}

type RoomPublisher interface {
	PublishToRoom(room RoomKey, msg ChatMessage)
}
