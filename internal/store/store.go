// Package store реализует слой кэшированных запросов к удалённому
// бэкенду: единственный источник правды для всех читаемых представлений.
// Каждой паре (ресурс, параметры) соответствует одна запись кэша;
// мутации не пишут в кэш, а инвалидируют семейство записей целиком.
package store

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Ошибки слоя кэшированных запросов.
var (
	// ErrNotReady возвращается, пока зависимости запроса не разрешены,
	// например до разрешения идентичности сессии.
	ErrNotReady = errors.New("query dependencies not ready")
	// ErrUnknownKey возвращается при обращении к незарегистрированному ключу.
	ErrUnknownKey = errors.New("unknown query key")
	// ErrValueType возвращается, когда закэшированное значение не приводится
	// к запрошенному типу.
	ErrValueType = errors.New("unexpected value type for query key")
)

// Key — структурированный ключ запроса: имя ресурса и упорядоченные
// параметры. Инвалидация по семейству сравнивает только Family.
type Key struct {
	Family string
	Params string
}

// NewKey строит ключ из имени семейства и списка параметров.
func NewKey(family string, params ...string) Key {
	return Key{Family: family, Params: strings.Join(params, "/")}
}

// String возвращает текстовое представление ключа для логов.
func (k Key) String() string {
	if k.Params == "" {
		return k.Family
	}
	return k.Family + "/" + k.Params
}

// FetchFunc загружает значение запроса из удалённого бэкенда.
type FetchFunc func(ctx context.Context) (any, error)

// Options определяют поведение отдельного запроса.
type Options struct {
	// Gate блокирует выполнение запроса, пока возвращает false.
	// nil означает отсутствие зависимостей.
	Gate func() bool
	// NoRetry запрещает автоматический повтор после ошибки: закэшированная
	// ошибка отдаётся до инвалидации или новой подписки.
	NoRetry bool
}

type entry struct {
	fetch FetchFunc
	opts  Options

	data      any
	hasData   bool
	fetchedAt time.Time
	err       error
	stale     bool

	pending bool
	flight  chan struct{}

	subscribers int
}

// Store хранит записи кэша и управляет их загрузкой и инвалидацией.
// Для одного ключа одновременно отслеживается не более одной загрузки.
type Store struct {
	mu      sync.Mutex
	entries map[Key]*entry
	logger  *zap.Logger
}

// New создаёт пустой слой кэшированных запросов.
func New(logger *zap.Logger) *Store {
	return &Store{
		entries: make(map[Key]*entry),
		logger:  logger,
	}
}

// Register привязывает функцию загрузки к ключу. Повторная регистрация
// обновляет функцию и настройки, сохраняя закэшированное состояние.
func (s *Store) Register(key Key, fetch FetchFunc, opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.fetch = fetch
		e.opts = opts
		return
	}
	s.entries[key] = &entry{fetch: fetch, opts: opts}
}

// Registered сообщает, зарегистрирован ли ключ.
func (s *Store) Registered(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Subscribe отмечает активного подписчика ключа и возвращает функцию
// отписки. Новая подписка — это свежий интерес: закэшированная ошибка
// снимается, а отсутствующие или устаревшие данные загружаются в фоне.
func (s *Store) Subscribe(key Key) func() {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return func() {}
	}
	e.subscribers++
	if e.err != nil {
		e.err = nil
		e.stale = true
	}
	needsFetch := (!e.hasData || e.stale) && !e.pending && s.gateOpen(e)
	s.mu.Unlock()

	if needsFetch {
		go s.refresh(key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if e.subscribers > 0 {
				e.subscribers--
			}
			s.mu.Unlock()
		})
	}
}

// Get возвращает значение запроса: из кэша, если оно свежее, иначе
// загружает его. Параллельные вызовы по одному ключу объединяются
// вокруг одной загрузки.
func (s *Store) Get(ctx context.Context, key Key) (any, error) {
	for {
		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			s.mu.Unlock()
			return nil, ErrUnknownKey
		}

		if !s.gateOpen(e) {
			s.mu.Unlock()
			return nil, ErrNotReady
		}

		if e.pending {
			flight := e.flight
			s.mu.Unlock()
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-flight:
			}
			// Ожидавший объединённую загрузку получает её исход и не
			// запускает новую при ошибке.
			s.mu.Lock()
			if e.err != nil {
				err := e.err
				s.mu.Unlock()
				return nil, err
			}
			if e.hasData && !e.stale {
				data := e.data
				s.mu.Unlock()
				return data, nil
			}
			s.mu.Unlock()
			continue
		}

		if e.hasData && !e.stale {
			data := e.data
			s.mu.Unlock()
			return data, nil
		}

		if e.err != nil && e.opts.NoRetry {
			err := e.err
			s.mu.Unlock()
			return nil, err
		}

		fetch := e.fetch
		e.pending = true
		e.flight = make(chan struct{})
		s.mu.Unlock()

		data, err := fetch(ctx)
		s.finishFetch(key, data, err)

		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

// InvalidateFamily помечает устаревшими все записи семейства. Записи с
// активными подписчиками перечитываются в фоне немедленно, остальные —
// при следующем обращении. Инвалидация не трогает данные до прихода
// свежего ответа.
func (s *Store) InvalidateFamily(family string) {
	s.mu.Lock()
	var refetch []Key
	for key, e := range s.entries {
		if key.Family != family {
			continue
		}
		e.stale = true
		e.err = nil
		if e.subscribers > 0 && !e.pending && s.gateOpen(e) {
			refetch = append(refetch, key)
		}
	}
	s.mu.Unlock()

	for _, key := range refetch {
		go s.refresh(key)
	}
}

// refresh выполняет фоновую перезагрузку записи.
func (s *Store) refresh(key Key) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.pending || !s.gateOpen(e) {
		s.mu.Unlock()
		return
	}
	fetch := e.fetch
	e.pending = true
	e.flight = make(chan struct{})
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	data, err := fetch(ctx)
	s.finishFetch(key, data, err)

	if err != nil {
		s.logger.Warn("background refetch failed",
			zap.String("key", key.String()), zap.Error(err))
	}
}

func (s *Store) finishFetch(key Key, data any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return
	}
	e.pending = false
	if e.flight != nil {
		close(e.flight)
		e.flight = nil
	}
	if err != nil {
		// Ранее закэшированные данные при ошибке не затираются.
		e.err = err
		return
	}
	e.data = data
	e.hasData = true
	e.fetchedAt = time.Now()
	e.err = nil
	e.stale = false
}

func (s *Store) gateOpen(e *entry) bool {
	return e.opts.Gate == nil || e.opts.Gate()
}

// GetAs возвращает значение запроса, приведённое к ожидаемому типу.
func GetAs[T any](ctx context.Context, s *Store, key Key) (T, error) {
	var zero T
	v, err := s.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, ErrValueType
	}
	return typed, nil
}
