// Package checkout реализует протокол оформления заказа: превращение
// снимка корзины ровно в один удалённый заказ либо чистый отказ без
// изменения локального состояния.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mmeshcher/swad-client/internal/cart"
	"github.com/mmeshcher/swad-client/internal/model"
)

// Ошибки контракта вызывающей стороны: отклоняются до любого удалённого
// вызова и не подлежат повтору.
var (
	ErrNotAuthenticated = errors.New("checkout requires an authenticated identity")
	ErrEmptyCart        = errors.New("checkout requires a non-empty cart")
	ErrInFlight         = errors.New("checkout already in flight")
)

// State — состояние попытки оформления заказа.
type State int

const (
	StateIdle State = iota
	StateSubmitting
	StateSucceeded
	StateFailed
)

// OrderPlacer отправляет снимок корзины на бэкенд.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, principal model.Principal, items []model.OrderItem, totalAmount int64, paymentMethod string) (int64, error)
}

// Identity возвращает текущий принципал сессии.
type Identity interface {
	Current() (model.Principal, bool)
}

// Cart — доступ протокола к корзине сессии.
type Cart interface {
	Len() int
	Snapshot() cart.Snapshot
	Clear()
}

// Invalidator помечает устаревшими семейства записей кэша запросов.
type Invalidator interface {
	InvalidateFamily(family string)
}

// Protocol управляет жизненным циклом одной попытки оформления:
// Idle → Submitting → {Succeeded, Failed}. Повторная отправка во время
// незавершённой попытки отклоняется: бэкенд не принимает ключ
// идемпотентности, и автоматический повтор мог бы задвоить заказ.
type Protocol struct {
	mu    sync.Mutex
	state State

	identity Identity
	cart     Cart
	placer   OrderPlacer
	inval    Invalidator
}

// New создаёт протокол оформления заказа.
func New(identity Identity, c Cart, placer OrderPlacer, inval Invalidator) *Protocol {
	return &Protocol{
		identity: identity,
		cart:     c,
		placer:   placer,
		inval:    inval,
	}
}

// State возвращает состояние последней попытки оформления.
func (p *Protocol) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Submit снимает корзину и отправляет её на бэкенд ровно один раз.
// Успех: корзина очищена, семейство "orders" кэша инвалидировано,
// возвращён идентификатор заказа. Неудача: корзина не тронута, ошибка
// восстановима и пользователь может повторить вручную.
func (p *Protocol) Submit(ctx context.Context, paymentMethod string) (int64, error) {
	p.mu.Lock()
	if p.state == StateSubmitting {
		p.mu.Unlock()
		return 0, ErrInFlight
	}

	principal, loggedIn := p.identity.Current()
	if !loggedIn {
		p.mu.Unlock()
		return 0, ErrNotAuthenticated
	}
	if p.cart.Len() == 0 {
		p.mu.Unlock()
		return 0, ErrEmptyCart
	}

	// Снимок фиксируется до отправки; изменения корзины во время полёта
	// запроса на отправленные данные не влияют.
	snap := p.cart.Snapshot()
	p.state = StateSubmitting
	p.mu.Unlock()

	orderID, err := p.placer.PlaceOrder(ctx, principal, snap.Items, snap.Total, paymentMethod)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.state = StateFailed
		return 0, fmt.Errorf("place order: %w", err)
	}

	// Очистка корзины происходит строго после подтверждения бэкенда.
	p.cart.Clear()
	p.state = StateSucceeded
	p.inval.InvalidateFamily("orders")
	return orderID, nil
}
