package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

// VoteLedger guarda votos de forma append-only e mantém a contagem por país na mesma transação.
type VoteLedger struct {
	db *gorm.DB
}

func NewVoteLedger(db *gorm.DB) *VoteLedger {
	return &VoteLedger{db: db}
}

type voteModel struct {
	ID      string    `gorm:"column:id;primaryKey"`
	UserID  string    `gorm:"column:user_id;index"`
	Country string    `gorm:"column:country;index"`
	CastAt  time.Time `gorm:"column:cast_at"`
}

func (voteModel) TableName() string {
	return "votes"
}

type tallyModel struct {
	Country      string    `gorm:"column:country;primaryKey"`
	VoteCount    int64     `gorm:"column:vote_count"`
	AtualizadoEm time.Time `gorm:"column:atualizado_em"`
}

func (tallyModel) TableName() string {
	return "country_tallies"
}

func fromDomainVote(v domain.Vote) voteModel {
	return voteModel{
		ID:      string(v.ID),
		UserID:  string(v.UserID),
		Country: v.Country,
		CastAt:  v.CastAt.UTC(),
	}
}

func (m voteModel) toDomain() domain.Vote {
	return domain.Vote{
		ID:      domain.VoteID(m.ID),
		UserID:  domain.UserID(m.UserID),
		Country: m.Country,
		CastAt:  m.CastAt.UTC(),
	}
}

func (l *VoteLedger) Append(ctx context.Context, vote domain.Vote) error {
	model := fromDomainVote(vote)
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("gorm votes: inserir: %w", err)
		}

		// Upsert cria a linha do país com 1 no primeiro voto e soma nas demais.
		tally := tallyModel{Country: model.Country, VoteCount: 1, AtualizadoEm: model.CastAt}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "country"}},
			DoUpdates: clause.Assignments(map[string]any{
				"vote_count":    gorm.Expr("country_tallies.vote_count + 1"),
				"atualizado_em": model.CastAt,
			}),
		}).Create(&tally).Error; err != nil {
			return fmt.Errorf("gorm votes: incrementar parcial %s: %w", model.Country, err)
		}
		return nil
	})
}

func (l *VoteLedger) MostRecentVote(ctx context.Context, userID domain.UserID) (domain.Vote, error) {
	var model voteModel
	err := l.db.WithContext(ctx).
		Where("user_id = ?", string(userID)).
		Order("cast_at DESC").
		Order("id DESC").
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Vote{}, domain.ErrNotFound
		}
		return domain.Vote{}, fmt.Errorf("gorm votes: ultimo voto %s: %w", userID, err)
	}
	return model.toDomain(), nil
}

func (l *VoteLedger) AllVotes(ctx context.Context) ([]domain.Vote, error) {
	var models []voteModel
	if err := l.db.WithContext(ctx).
		Order("cast_at ASC").
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("gorm votes: listar: %w", err)
	}

	votes := make([]domain.Vote, len(models))
	for i, m := range models {
		votes[i] = m.toDomain()
	}
	return votes, nil
}

// CountByCountry lê a tabela materializada; ela continua correta mesmo após a compactação dos votos brutos.
func (l *VoteLedger) CountByCountry(ctx context.Context) (map[string]int64, error) {
	var rows []tallyModel
	if err := l.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("gorm votes: parciais: %w", err)
	}

	totais := make(map[string]int64, len(rows))
	for _, row := range rows {
		totais[row.Country] = row.VoteCount
	}
	return totais, nil
}

func (l *VoteLedger) Compact(ctx context.Context, before time.Time) (int64, error) {
	res := l.db.WithContext(ctx).
		Where("cast_at < ?", before.UTC()).
		Delete(&voteModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("gorm votes: compactar: %w", res.Error)
	}
	return res.RowsAffected, nil
}

var _ domain.VoteLedger = (*VoteLedger)(nil)
