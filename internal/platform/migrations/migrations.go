// Pacote migrations centraliza as versões gormigrate aplicadas na inicialização.
package migrations

import (
	"fmt"

	gormigrate "github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/marcelojr/pais-ao-vivo/internal/domain"
)

func Run(db *gorm.DB) error {
	if db == nil {
		return fmt.Errorf("migrations: db nulo")
	}

	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "202501150001_votes",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&domain.Vote{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("votes")
			},
		},
		{
			// Parciais materializadas permitem compactar votos antigos sem perder a contagem.
			ID: "202501150002_country_tallies",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&domain.CountryTallyRow{}); err != nil {
					return err
				}
				return tx.Exec(`
					INSERT INTO country_tallies (country, vote_count, atualizado_em)
					SELECT country, COUNT(*), MAX(cast_at) FROM votes GROUP BY country
				`).Error
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("country_tallies")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("migrations: falha ao aplicar: %w", err)
	}

	return nil
}
