package workflow

import (
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultProductionWarehouseId = 1
	defaultFinishedWarehouseId   = 2
)

// Engine is the inventory ledger and production batch engine. It owns no
// state of its own; everything lives in the database handle passed in, and
// every operation runs as a single transaction.
type Engine struct {
	db     *gorm.DB
	logger *logrus.Logger
	locker *redislock.Client

	// Materials are issued from the production warehouse; finished goods
	// are received into the finished-goods warehouse. Rework transfers
	// move finished goods back the other way.
	productionWarehouseId int
	finishedWarehouseId   int
}

type EngineOption func(*Engine)

// WithLocker enables best-effort redis posting locks around batch
// transitions. Optional; correctness comes from row locks either way.
func WithLocker(locker *redislock.Client) EngineOption {
	return func(e *Engine) {
		e.locker = locker
	}
}

func WithWarehouses(productionWarehouseId int, finishedWarehouseId int) EngineOption {
	return func(e *Engine) {
		e.productionWarehouseId = productionWarehouseId
		e.finishedWarehouseId = finishedWarehouseId
	}
}

func NewEngine(db *gorm.DB, logger *logrus.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		db:                    db,
		logger:                logger,
		productionWarehouseId: defaultProductionWarehouseId,
		finishedWarehouseId:   defaultFinishedWarehouseId,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) ProductionWarehouseId() int {
	return e.productionWarehouseId
}

func (e *Engine) FinishedWarehouseId() int {
	return e.finishedWarehouseId
}
