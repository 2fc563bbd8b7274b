package domain

import (
	"time"
)

// GlobalRoom é a chave da única sala global; salas de país usam o nome do país.
const GlobalRoom RoomKey = "global"

type (
	VoteID    string
	UserID    string
	MessageID string
	RoomKey   string
)

type Vote struct {
	ID      VoteID    `gorm:"column:id;type:char(26);primaryKey"`
	UserID  UserID    `gorm:"column:user_id;type:text;not null;index:idx_votes_user_cast_at,priority:1"`
	Country string    `gorm:"column:country;type:text;not null;index:idx_votes_country"`
	CastAt  time.Time `gorm:"column:cast_at;not null;index:idx_votes_user_cast_at,priority:2;index:idx_votes_cast_at"`
}

// CountryTallyRow é a contagem materializada, incrementada na mesma transação do voto.
type CountryTallyRow struct {
	Country      string    `gorm:"column:country;type:text;primaryKey"`
	VoteCount    int64     `gorm:"column:vote_count;not null;default:0"`
	AtualizadoEm time.Time `gorm:"column:atualizado_em;autoUpdateTime"`
}

type CountryTally struct {
	Country   string `json:"country"`
	VoteCount int64  `json:"vote_count"`
}

// CooldownStatus descreve a situação do usuário frente à janela de espera.
type CooldownStatus struct {
	Allowed        bool       `json:"allowed"`
	LastVoteAt     *time.Time `json:"last_vote_at"`
	NextEligibleAt *time.Time `json:"next_eligible_at"`
}

type ChatMessage struct {
	ID       MessageID `json:"id"`
	Seq      int64     `json:"seq"`
	AuthorID UserID    `json:"author_id"`
	RoomKey  RoomKey   `json:"room"`
	Body     string    `json:"body"`
	PostedAt time.Time `json:"posted_at"`
}

func (Vote) TableName() string { return "votes" }

func (CountryTallyRow) TableName() string { return "country_tallies" }
