package handlers

import (
	"circulation/internal/events"
	"circulation/internal/metrics"
	"circulation/internal/repos"
	"circulation/internal/services"

	"github.com/jmoiron/sqlx"
)

type Deps struct {
	Auth    *services.AuthService
	Events  events.Publisher
	Metrics *metrics.Metrics

	AuthHandler      *AuthHandler
	BorrowHandler    *BorrowHandler
	AdminHandler     *AdminHandler
	InventoryHandler *InventoryHandler
}

func NewDeps(db *sqlx.DB, pub events.Publisher, m *metrics.Metrics) *Deps {
	authSvc := services.NewAuthService(repos.NewReaderRepo(db))
	circSvc := services.NewCirculationService(db, pub, m)
	invSvc := services.NewInventoryService(db)

	return &Deps{
		Auth:             authSvc,
		Events:           pub,
		Metrics:          m,
		AuthHandler:      &AuthHandler{Auth: authSvc},
		BorrowHandler:    &BorrowHandler{Circ: circSvc},
		AdminHandler:     &AdminHandler{Circ: circSvc, Inv: invSvc},
		InventoryHandler: &InventoryHandler{Inv: invSvc},
	}
}
