// Package identity реализует шлюз идентичности сессии: держатель
// текущего принципала. Провиженинг учётных записей выполняет внешний
// провайдер; здесь хранится только результат его разрешения.
package identity

import (
	"sync"

	"github.com/mmeshcher/swad-client/internal/model"
)

// Gate хранит разрешённую идентичность сессии. До первого вызова Resolve
// или Clear шлюз считается неразрешённым: зависящие от идентичности
// запросы не должны выполняться, чтобы ответ "профиля нет" нельзя было
// перепутать с ещё не известной идентичностью.
type Gate struct {
	mu        sync.RWMutex
	resolved  bool
	principal model.Principal
	loggedIn  bool
}

// NewGate создаёт неразрешённый шлюз идентичности.
func NewGate() *Gate {
	return &Gate{}
}

// Resolve фиксирует вход пользователя с указанным принципалом.
func (g *Gate) Resolve(p model.Principal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolved = true
	g.principal = p
	g.loggedIn = true
}

// Clear фиксирует выход пользователя. Шлюз остаётся разрешённым:
// ответ "идентичности нет" — это известный результат, а не её отсутствие.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resolved = true
	g.principal = ""
	g.loggedIn = false
}

// Current возвращает текущий принципал и признак того, что пользователь
// вошёл в систему.
func (g *Gate) Current() (model.Principal, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.principal, g.loggedIn
}

// Resolved сообщает, была ли идентичность уже разрешена провайдером.
func (g *Gate) Resolved() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.resolved
}
